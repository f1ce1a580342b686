package protocol

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestNegotiate_SupportedVersions(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    Version
		wantErr bool
	}{
		{"version 0", []byte{0}, V0, false},
		{"version 1", []byte{1}, V1, false},
		{"version 2", []byte{2}, V2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(bytes.NewReader(tt.input))
			got, err := Negotiate(r, DefaultSupportedVersions)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Negotiate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Negotiate() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNegotiate_UnsupportedVersion(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{3}))
	_, err := Negotiate(r, DefaultSupportedVersions)
	if err == nil {
		t.Fatal("expected error for unsupported version, got nil")
	}
}

func TestNegotiate_RestrictedSupportedSet(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{2}))
	_, err := Negotiate(r, []Version{V1})
	if err == nil {
		t.Fatal("expected error when v2 is not in the supported set")
	}
}

func TestNegotiate_NoVersionByte(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{}))
	_, err := Negotiate(r, DefaultSupportedVersions)
	if err == nil {
		t.Fatal("expected error for no version byte, got nil")
	}
}

func TestNegotiate_PeekError(t *testing.T) {
	r := bufio.NewReader(errReader{})
	_, err := Negotiate(r, DefaultSupportedVersions)
	if err == nil {
		t.Fatal("expected error from Peek, got nil")
	}
}

func TestHighest(t *testing.T) {
	if got := Highest([]Version{V0, V2, V1}); got != V2 {
		t.Errorf("Highest() = %v, want %v", got, V2)
	}
}

// errReader always returns error on Read
type errReader struct{}

func (errReader) Read(p []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
