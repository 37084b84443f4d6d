package elm327

import (
	"context"

	"obd2ai/obd"
)

// TroubleCodes читает сохраненные коды (режим 03)
func (s *Session) TroubleCodes(ctx context.Context) ([]string, error) {
	return s.troubleCodes(ctx, obd.TroubleCodesCommand)
}

// PendingTroubleCodes читает ожидающие коды (режим 07)
func (s *Session) PendingTroubleCodes(ctx context.Context) ([]string, error) {
	return s.troubleCodes(ctx, obd.PendingTroubleCodesCommand)
}

// PermanentTroubleCodes читает постоянные коды (режим 0A)
func (s *Session) PermanentTroubleCodes(ctx context.Context) ([]string, error) {
	return s.troubleCodes(ctx, obd.PermanentTroubleCodesCommand)
}

// AllTroubleCodes объединяет коды трех режимов без повторов
func (s *Session) AllTroubleCodes(ctx context.Context) ([]string, error) {
	fetchers := []func(context.Context) ([]string, error){
		s.TroubleCodes,
		s.PendingTroubleCodes,
		s.PermanentTroubleCodes,
	}

	sets := make([][]string, 0, len(fetchers))
	for _, fetch := range fetchers {
		codes, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		sets = append(sets, codes)
	}
	return obd.UnionTroubleCodes(sets...), nil
}

func (s *Session) troubleCodes(ctx context.Context, cmd obd.Command) ([]string, error) {
	resp, err := s.RunCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}
	codes := obd.SplitTroubleCodes(resp.Value)
	logger.Printf("%s: %d code(s) %v", cmd.Name, len(codes), codes)
	return codes, nil
}
