// Package image defines the tape image: a compiled program together with the
// metadata needed to run and inspect it, and its on-disk encoding.
//
// An encoded image is a four byte magic number, a little-endian uint32
// format version, then the image itself in canonical CBOR.
package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/tapec/pkg/stack"
)

// Magic identifies a tape image file.
var Magic = [4]byte{'T', 'A', 'P', 'E'}

// Version is the current image format version.
const Version uint32 = 1

const headerSize = 8

var (
	ErrBadMagic     = errors.New("not a tape image")
	ErrVersion      = errors.New("unsupported image version")
	ErrHashMismatch = errors.New("code does not match image hash")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Slot is a frame slot as recorded in an image.
type Slot struct {
	Name string `cbor:"1,keyasint"`
	Size int    `cbor:"2,keyasint"`
}

// Image is a compiled tape program.
type Image struct {
	Name     string   `cbor:"1,keyasint"`
	Code     string   `cbor:"2,keyasint"`           // tape machine instructions
	Hash     [32]byte `cbor:"3,keyasint"`           // sha256 of Code
	Ops      []string `cbor:"4,keyasint,omitempty"` // macro-op listing
	Frame    []Slot   `cbor:"5,keyasint,omitempty"`
	Extent   int      `cbor:"6,keyasint,omitempty"` // cells touched right of the start
	Capacity int      `cbor:"7,keyasint,omitempty"` // requested tape size, 0 for default
}

// New creates an image for code and seals its hash.
func New(name, code string) *Image {
	return &Image{Name: name, Code: code, Hash: HashCode(code)}
}

// HashCode returns the content hash of tape code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// SetFrame records the frame layout.
func (img *Image) SetFrame(f *stack.Frame) {
	img.Frame = img.Frame[:0]
	for _, s := range f.Slots() {
		img.Frame = append(img.Frame, Slot{Name: s.Name, Size: s.Size})
	}
}

// ID returns the hex form of the image hash.
func (img *Image) ID() string {
	return hex.EncodeToString(img.Hash[:])
}

// Verify checks the code against the recorded hash.
func (img *Image) Verify() error {
	if HashCode(img.Code) != img.Hash {
		return ErrHashMismatch
	}
	return nil
}

// Marshal encodes img with its header.
func Marshal(img *Image) ([]byte, error) {
	body, err := encMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	buf := make([]byte, headerSize, headerSize+len(body))
	copy(buf, Magic[:])
	binary.LittleEndian.PutUint32(buf[4:], Version)
	return append(buf, body...), nil
}

// Unmarshal decodes and verifies an encoded image.
func Unmarshal(data []byte) (*Image, error) {
	if !IsImage(data) {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(data[4:headerSize]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	var img Image
	if err := cbor.Unmarshal(data[headerSize:], &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if err := img.Verify(); err != nil {
		return nil, fmt.Errorf("image %q: %w", img.Name, err)
	}
	return &img, nil
}

// IsImage reports whether data starts with an image header.
func IsImage(data []byte) bool {
	return len(data) >= headerSize && bytes.Equal(data[:4], Magic[:])
}

// WriteFile encodes img to path.
func WriteFile(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile decodes the image at path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
