package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/tapec/compiler"
	"github.com/chazu/tapec/manifest"
	"github.com/chazu/tapec/pkg/bil"
	"github.com/chazu/tapec/pkg/bytecode"
	"github.com/chazu/tapec/pkg/image"
	"github.com/chazu/tapec/pkg/stack"
	"github.com/chazu/tapec/store"
)

// cacheSalt is mixed into every cache key; bump it when code generation
// changes so stale images are not reused.
const cacheSalt = "tapec/1"

type env struct {
	manifest *manifest.Manifest
}

// program is a loaded input. Code, Frame and Out are only set when the
// input was bytecode compiled during this invocation.
type program struct {
	path   string
	code   []bytecode.Instr
	frame  *stack.Frame
	out    *compiler.Output
	image  *image.Image
	cached bool
}

// load reads an image, compiles bytecode text or wraps raw tape code,
// depending on the file.
func (e *env) load(path string, useCache bool) (*program, error) {
	if path == "" {
		path = e.manifest.EntryPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch {
	case image.IsImage(data):
		img, err := image.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &program{path: path, image: img}, nil
	case filepath.Ext(path) == ".tbc":
		return e.compile(path, name, data, useCache)
	default:
		img := image.New(name, string(data))
		img.Capacity = e.manifest.Machine.Capacity
		return &program{path: path, image: img}, nil
	}
}

func (e *env) compile(path, name string, data []byte, useCache bool) (*program, error) {
	code, err := bytecode.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	frame, err := stack.FromBytecode(code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p := &program{path: path, code: code, frame: frame}

	var st *store.Store
	key := store.Key([]byte(cacheSalt), data)
	if cachePath := e.manifest.CachePath(); useCache && cachePath != "" {
		st, err = store.Open(cachePath)
		if err != nil {
			log.Warningf("build cache unavailable: %v", err)
		} else {
			defer st.Close()
			img, err := st.Get(key)
			switch {
			case err == nil:
				p.image, p.cached = img, true
				return p, nil
			case !errors.Is(err, store.ErrNotFound):
				log.Warningf("build cache: %v", err)
			}
		}
	}

	out, err := compiler.Compile(code, frame)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img := image.New(name, out.Code)
	img.Ops = bil.Listing(out.Ops)
	img.SetFrame(frame)
	img.Extent = out.Extent
	img.Capacity = e.manifest.Machine.Capacity
	p.out, p.image = out, img

	if st != nil {
		if _, err := st.Put(key, img); err != nil {
			log.Warningf("build cache: %v", err)
		}
	}
	return p, nil
}
