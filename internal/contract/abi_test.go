package contract

import "testing"

func TestParsedABI(t *testing.T) {
	parsed, err := ParsedABI()
	if err != nil {
		t.Fatalf("ParsedABI() error = %v", err)
	}

	if _, ok := parsed.Events[BetPlacedEvent]; !ok {
		t.Errorf("missing %s event", BetPlacedEvent)
	}
	if _, ok := parsed.Events[BetSettledEvent]; !ok {
		t.Errorf("missing %s event", BetSettledEvent)
	}
	if _, ok := parsed.Methods[SettleBetMethod]; !ok {
		t.Errorf("missing %s method", SettleBetMethod)
	}
	if _, ok := parsed.Methods[RevealDelayMethod]; !ok {
		t.Errorf("missing %s method", RevealDelayMethod)
	}
	if _, ok := parsed.Methods[PlayerBetsMethod]; !ok {
		t.Errorf("missing %s method", PlayerBetsMethod)
	}
}

func TestIsBig(t *testing.T) {
	cases := []struct {
		hashValue uint8
		want      bool
	}{
		{0, false},
		{4, false},
		{5, true},
		{255, true},
	}

	for _, c := range cases {
		if got := IsBig(c.hashValue); got != c.want {
			t.Errorf("IsBig(%d) = %v, want %v", c.hashValue, got, c.want)
		}
	}
}
