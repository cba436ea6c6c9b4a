package config

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		bypass  bool
	}{
		{"production", Config{Mode: ModeProduction}, false, false},
		{"production with bypass", Config{Mode: ModeProduction, Payment: Payment{SkipPayment: true}}, true, false},
		{"development with bypass", Config{Mode: ModeDevelopment, Payment: Payment{SkipPayment: true}}, false, true},
		{"development", Config{Mode: ModeDevelopment}, false, false},
		{"unknown mode", Config{Mode: "staging"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := tt.cfg.BypassPayment(); got != tt.bypass {
				t.Fatalf("BypassPayment() = %v, want %v", got, tt.bypass)
			}
		})
	}
}
