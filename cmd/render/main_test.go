package main

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestParseAssign(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		want    mgl32.Vec3
		wantErr bool
	}{
		{"首=0,1,0", "首", mgl32.Vec3{0, 1, 0}, false},
		{"Neck= 1.5, -2 ,3", "Neck", mgl32.Vec3{1.5, -2, 3}, false},
		{"neck", "", mgl32.Vec3{}, true},
		{"=1,2,3", "", mgl32.Vec3{}, true},
		{"neck=1,2", "", mgl32.Vec3{}, true},
		{"neck=a,2,3", "", mgl32.Vec3{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, v, err := parseAssign(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if name != tt.name || v != tt.want {
				t.Errorf("got %q %v", name, v)
			}
		})
	}
}
