package bytesize

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  ByteSize
	}{
		{"1024", 1024},
		{"1Ki", KiB},
		{"1KiB", KiB},
		{"500Mi", 500 * MiB},
		{"2Gi", 2 * GiB},
		{"1Ti", TiB},
		{"100MB", 100 * MB},
		{"1kb", KB},
		{"1.5Gi", ByteSize(1.5 * float64(GiB))},
		{"  64Mi  ", 64 * MiB},
		{"0", 0},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "1Xi", "-5Mi", "1.2.3Gi"} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", input)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		size ByteSize
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{KiB, "1Ki"},
		{2 * GiB, "2Gi"},
		{500 * MiB, "500Mi"},
		{TiB, "1Ti"},
	}

	for _, tt := range tests {
		if got := tt.size.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, size := range []ByteSize{0, 1, KiB, 3 * MiB, 7 * GiB} {
		text, err := size.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText failed: %v", err)
		}

		var parsed ByteSize
		if err := parsed.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) failed: %v", text, err)
		}
		if parsed != size {
			t.Errorf("round trip %d -> %q -> %d", size, text, parsed)
		}
	}
}
