package conversion

import "testing"

func TestRect_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rect    Rect
		wantErr bool
	}{
		{"full page", Rect{X: 0, Y: 0, Width: 1, Height: 1}, false},
		{"interior region", Rect{X: 0.25, Y: 0.1, Width: 0.5, Height: 0.3}, false},
		{"touches right edge", Rect{X: 0.5, Y: 0, Width: 0.5, Height: 0.2}, false},

		{"zero width", Rect{X: 0.1, Y: 0.1, Width: 0, Height: 0.5}, true},
		{"zero height", Rect{X: 0.1, Y: 0.1, Width: 0.5, Height: 0}, true},
		{"negative origin", Rect{X: -0.1, Y: 0, Width: 0.5, Height: 0.5}, true},
		{"origin beyond page", Rect{X: 1.1, Y: 0, Width: 0.1, Height: 0.1}, true},
		{"extends past right edge", Rect{X: 0.8, Y: 0, Width: 0.3, Height: 0.1}, true},
		{"extends past bottom edge", Rect{X: 0, Y: 0.9, Width: 0.1, Height: 0.2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rect.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSegmentation_Validate(t *testing.T) {
	seg := Segmentation{
		PageNumber: 0,
		Rect:       Rect{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2},
		Label:      "DIAGRAM-1",
	}
	if err := seg.Validate(); err != nil {
		t.Errorf("valid segmentation rejected: %v", err)
	}

	seg.PageNumber = -1
	if err := seg.Validate(); err == nil {
		t.Error("expected error for negative page number")
	}

	seg.PageNumber = 0
	seg.Rect.Width = 2
	if err := seg.Validate(); err == nil {
		t.Error("expected error for invalid rectangle")
	}
}
