package image

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/tapec/pkg/stack"
)

func sample(t *testing.T) *Image {
	t.Helper()
	img := New("demo", ">+++[-]<")
	frame := stack.NewFrame()
	if err := frame.Add("x", 1); err != nil {
		t.Fatal(err)
	}
	if err := frame.Add("buf", 4); err != nil {
		t.Fatal(err)
	}
	img.SetFrame(frame)
	img.Ops = []string{"go(1)", "add(0, 3)"}
	img.Extent = 6
	return img
}

func TestRoundTrip(t *testing.T) {
	img := sample(t)
	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !IsImage(data) {
		t.Fatal("encoded image lacks the header")
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, img) {
		t.Errorf("round trip = %+v, want %+v", got, img)
	}
	if want := []Slot{{"x", 1}, {"buf", 4}}; !reflect.DeepEqual(got.Frame, want) {
		t.Errorf("Frame = %v, want %v", got.Frame, want)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	a, err := Marshal(sample(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(sample(t))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("equal images encoded differently")
	}
}

func TestUnmarshalErrors(t *testing.T) {
	data, err := Marshal(sample(t))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Unmarshal([]byte("+++.")); !errors.Is(err, ErrBadMagic) {
		t.Errorf("raw code error = %v, want ErrBadMagic", err)
	}

	future := append([]byte(nil), data...)
	future[4] = 9
	if _, err := Unmarshal(future); !errors.Is(err, ErrVersion) {
		t.Errorf("version 9 error = %v, want ErrVersion", err)
	}

	tampered := sample(t)
	tampered.Code += "."
	bad, err := Marshal(tampered)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(bad); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("tampered code error = %v, want ErrHashMismatch", err)
	}

	if _, err := Unmarshal(data[:len(data)-3]); err == nil {
		t.Error("truncated image decoded without error")
	}
}

func TestID(t *testing.T) {
	a, b := New("a", "+"), New("b", "+")
	if a.ID() != b.ID() {
		t.Error("ID should depend on code only")
	}
	if len(a.ID()) != 64 {
		t.Errorf("ID() = %q, want 64 hex digits", a.ID())
	}
	if New("a", "-").ID() == a.ID() {
		t.Error("different code, same ID")
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tape")
	img := sample(t)
	if err := WriteFile(path, img); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Code != img.Code || got.Name != img.Name {
		t.Errorf("ReadFile() = %+v", got)
	}
}

func FuzzUnmarshal(f *testing.F) {
	img := New("seed", "+[-]")
	data, err := Marshal(img)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(data)
	f.Add([]byte("TAPE"))
	f.Fuzz(func(t *testing.T, data []byte) {
		img, err := Unmarshal(data)
		if err != nil {
			return
		}
		if err := img.Verify(); err != nil {
			t.Fatalf("Unmarshal accepted an image that fails Verify: %v", err)
		}
	})
}
