package imageio_test

import (
	"testing"

	"github.com/deoncoke/oiio/imageio"
)

func TestTypeDesc(t *testing.T) {
	tests := []struct {
		desc      imageio.TypeDesc
		wantValid bool
		wantSize  int
		wantStr   string
	}{
		{imageio.TypeUInt8, true, 1, "uint8"},
		{imageio.TypeInt8, true, 1, "int8"},
		{imageio.TypeUInt16, true, 2, "uint16"},
		{imageio.TypeInt16, true, 2, "int16"},
		{imageio.TypeUInt32, true, 4, "uint32"},
		{imageio.TypeInt32, true, 4, "int32"},
		{imageio.TypeFloat, true, 4, "float32"},
		{imageio.TypeDouble, true, 8, "float64"},
		{imageio.TypeDesc{Kind: imageio.KindFloat, Bits: 8}, false, 1, "float8"},
		{imageio.TypeDesc{Kind: imageio.KindUInt, Bits: 64}, false, 8, "uint64"},
		{imageio.TypeDesc{Kind: imageio.KindUInt, Bits: 12}, false, 1, "uint12"},
		{imageio.TypeUnknown, false, 0, "uint0"},
	}
	for _, tt := range tests {
		t.Run(tt.wantStr, func(t *testing.T) {
			if got := tt.desc.Valid(); got != tt.wantValid {
				t.Errorf("Valid() = %v, want %v", got, tt.wantValid)
			}
			if got := tt.desc.Size(); got != tt.wantSize {
				t.Errorf("Size() = %d, want %d", got, tt.wantSize)
			}
			if got := tt.desc.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestTypeDescEquality(t *testing.T) {
	a := imageio.TypeDesc{Kind: imageio.KindUInt, Bits: 16}
	if a != imageio.TypeUInt16 {
		t.Error("structurally equal descriptors must compare equal")
	}
	if imageio.TypeUInt16 == imageio.TypeInt16 {
		t.Error("descriptors with different kinds must not compare equal")
	}
}
