package obd

import (
	"reflect"
	"sort"
	"testing"
)

func TestSplitTroubleCodes(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"P0301, P0171  P0420", []string{"P0301", "P0171", "P0420"}},
		{"P0301,P0171", []string{"P0301", "P0171"}},
		{" ,, P0420 ,", []string{"P0420"}},
		{"P0301\fP0171\vP0420", []string{"P0301", "P0171", "P0420"}},
		{"P0301\u00a0P0171\r\nP0420", []string{"P0301", "P0171", "P0420"}},
		{"NO DATA", []string{}},
		{"no data", []string{}},
		{"", []string{}},
		{"   ", []string{}},
	}

	for _, tt := range tests {
		got := SplitTroubleCodes(tt.input)
		if got == nil {
			t.Errorf("Expected non-nil slice for %q", tt.input)
		}
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("SplitTroubleCodes(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestUnionTroubleCodes(t *testing.T) {
	current := []string{"P0301"}
	pending := []string{"P0301", "P0171"}
	permanent := []string{}

	got := UnionTroubleCodes(current, pending, permanent)
	sort.Strings(got)

	expected := []string{"P0171", "P0301"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	if len(UnionTroubleCodes()) != 0 {
		t.Error("Expected empty union for no sets")
	}
}

func TestDecodeDTC(t *testing.T) {
	tests := []struct {
		a, b     byte
		expected string
	}{
		{0x03, 0x01, "P0301"},
		{0x01, 0x71, "P0171"},
		{0x04, 0x20, "P0420"},
		{0x41, 0x23, "C0123"},
		{0x91, 0x00, "B1100"},
		{0xE1, 0x03, "U2103"},
		{0x00, 0x00, ""},
	}

	for _, tt := range tests {
		if got := DecodeDTC(tt.a, tt.b); got != tt.expected {
			t.Errorf("DecodeDTC(%02X, %02X) = %q, expected %q", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestTroubleCodesDecoder(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		response string
		expected string
	}{
		{
			name:     "legacy protocol with padding",
			command:  TroubleCodesCommand,
			response: "43 03 01 01 71 00 00\r\r>",
			expected: "P0301,P0171",
		},
		{
			name:     "legacy protocol two lines",
			command:  TroubleCodesCommand,
			response: "43 03 01 01 71 04 20\r43 01 33 00 00 00 00\r\r>",
			expected: "P0301,P0171,P0420,P0133",
		},
		{
			name:     "CAN single frame with count",
			command:  TroubleCodesCommand,
			response: "43 02 03 01 01 71\r\r>",
			expected: "P0301,P0171",
		},
		{
			name:     "CAN no codes",
			command:  TroubleCodesCommand,
			response: "43 00\r\r>",
			expected: "",
		},
		{
			name:     "CAN multi frame",
			command:  TroubleCodesCommand,
			response: "00A\r0: 43 04 03 01 01 71\r1: 04 20 01 33 00 00 00\r\r>",
			expected: "P0301,P0171,P0420,P0133",
		},
		{
			name:     "pending codes",
			command:  PendingTroubleCodesCommand,
			response: "47 01 01 71",
			expected: "P0171",
		},
		{
			name:     "permanent codes",
			command:  PermanentTroubleCodesCommand,
			response: "4A 01 04 20",
			expected: "P0420",
		},
		{
			name:     "no data",
			command:  TroubleCodesCommand,
			response: "NO DATA\r\r>",
			expected: "",
		},
		{
			name:     "wrong header",
			command:  PendingTroubleCodesCommand,
			response: "43 01 03 01",
			expected: "",
		},
		{
			name:     "garbage",
			command:  TroubleCodesCommand,
			response: "?",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.command.Decode(NewRawCapture(tt.response))
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestTroubleCodesRoundTripThroughTokenizer(t *testing.T) {
	value := TroubleCodesCommand.Decode(NewRawCapture("43 03 01 01 71 04 20"))
	codes := SplitTroubleCodes(value)

	expected := []string{"P0301", "P0171", "P0420"}
	if !reflect.DeepEqual(codes, expected) {
		t.Errorf("Expected %v, got %v", expected, codes)
	}
}
