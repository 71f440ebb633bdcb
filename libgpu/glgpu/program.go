package glgpu

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"github.com/go-gl/gl/v4.5-core/gl"

	"iblbake/libgpu"
)

const glslVersion = "#version 450 core\n"

const fullscreenVertexSrc = glslVersion + `
out gl_PerVertex {
    vec4 gl_Position;
};

layout(location = 0) out vec2 v_uv;

void main() {
    vec2 pos = vec2(float((gl_VertexID & 1) << 2) - 1.0, float((gl_VertexID & 2) << 1) - 1.0);
    v_uv = pos * 0.5 + 0.5;
    gl_Position = vec4(pos, 0.0, 1.0);
}
`

// FragmentSource returns the full fragment stage source of desc.
func FragmentSource(desc *libgpu.ProgramDesc) string {
	var sb strings.Builder
	sb.WriteString(glslVersion)
	for _, def := range desc.SortedDefines() {
		fmt.Fprintf(&sb, "#define %s %s\n", def[0], def[1])
	}
	sb.WriteString(desc.GLSL)
	return sb.String()
}

// programCache stores linked program binaries keyed by the source and the
// driver that produced them.
type programCache struct {
	dir    string
	hasher hash.Hash
	maxAge time.Duration
}

func newProgramCache(dir string) *programCache {
	return &programCache{
		dir:    dir,
		hasher: md5.New(),
		// the driver might have been updated and produce different code now
		maxAge: 30 * 24 * time.Hour,
	}
}

func (cache *programCache) hash(source string) string {
	cache.hasher.Reset()
	cache.hasher.Write([]byte(source))
	cache.hasher.Write([]byte(gl.GoStr(gl.GetString(gl.VENDOR))))
	cache.hasher.Write([]byte(gl.GoStr(gl.GetString(gl.RENDERER))))
	cache.hasher.Write([]byte(gl.GoStr(gl.GetString(gl.VERSION))))
	sum := cache.hasher.Sum(nil)
	return fmt.Sprintf("%x", sum)
}

func (cache *programCache) Put(source string, id uint32) {
	err := os.MkdirAll(cache.dir, 0755)
	if err != nil {
		libgpu.Logger().Warn("could not create program cache directory", "err", err)
		return
	}
	var length int32
	gl.GetProgramiv(id, gl.PROGRAM_BINARY_LENGTH, &length)
	if length == 0 {
		return
	}
	buf := make([]byte, length)
	var format uint32
	gl.GetProgramBinary(id, length, &length, &format, unsafe.Pointer(&buf[0]))
	buf = buf[:length]

	file, err := os.OpenFile(filepath.Join(cache.dir, cache.hash(source)+".bin"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		libgpu.Logger().Warn("could not write program cache", "err", err)
		return
	}
	defer file.Close()
	if err := binary.Write(file, binary.LittleEndian, format); err != nil {
		libgpu.Logger().Warn("could not write program cache", "err", err)
		return
	}
	if _, err := file.Write(buf); err != nil {
		libgpu.Logger().Warn("could not write program cache", "err", err)
	}
}

func (cache *programCache) Get(source string) (ok bool, buf []byte, format uint32) {
	var err error
	defer func() {
		if err != nil {
			libgpu.Logger().Warn("could not read program cache", "err", err)
		}
	}()
	path := filepath.Join(cache.dir, cache.hash(source)+".bin")
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
		return
	}
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > cache.maxAge {
		os.Remove(path)
		return
	}
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()
	if err = binary.Read(file, binary.LittleEndian, &format); err != nil {
		return
	}
	buf, err = io.ReadAll(file)
	if err != nil || len(buf) == 0 {
		return
	}
	return true, buf, format
}

// buildProgram creates a separable single stage program, from the binary
// cache if it has a usable entry.
func buildProgram(name string, stage uint32, source string, cache *programCache) (uint32, error) {
	var id uint32
	cached := false
	if cache != nil {
		if ok, buf, format := cache.Get(source); ok {
			id = gl.CreateProgram()
			gl.ProgramParameteri(id, gl.PROGRAM_SEPARABLE, gl.TRUE)
			gl.ProgramBinary(id, format, unsafe.Pointer(&buf[0]), int32(len(buf)))
			var linked int32
			gl.GetProgramiv(id, gl.LINK_STATUS, &linked)
			if linked == gl.TRUE {
				cached = true
			} else {
				// stale binary, compile from source
				gl.DeleteProgram(id)
			}
		}
	}
	if !cached {
		cStrs, free := gl.Strs(source + "\x00")
		id = gl.CreateShaderProgramv(stage, 1, cStrs)
		free()
	}

	var ok int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &ok)
	if ok == gl.FALSE {
		log := readProgramInfoLog(id)
		gl.DeleteProgram(id)
		return 0, fmt.Errorf("failed to link %v program, log: %v: %w", name, log, libgpu.ErrCompile)
	}
	gl.ValidateProgram(id)
	gl.GetProgramiv(id, gl.VALIDATE_STATUS, &ok)
	if ok == gl.FALSE {
		log := readProgramInfoLog(id)
		gl.DeleteProgram(id)
		return 0, fmt.Errorf("failed to validate %v program, log: %v: %w", name, log, libgpu.ErrCompile)
	}
	setObjectLabel(gl.PROGRAM, id, name)

	if cache != nil && !cached {
		cache.Put(source, id)
	}
	return id, nil
}

func readProgramInfoLog(id uint32) string {
	var logLength int32
	gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &logLength)

	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetProgramInfoLog(id, logLength, nil, gl.Str(log))
	return strings.TrimRight(log, "\x00")
}

// Compiler compiles the GLSL fragment stage of a program. It must be used
// on the thread of the context the device was created with.
type Compiler struct {
	cache *programCache
}

// NewCompiler returns a compiler that caches program binaries in cacheDir.
// An empty cacheDir disables the cache.
func NewCompiler(cacheDir string) *Compiler {
	c := &Compiler{}
	if cacheDir != "" {
		c.cache = newProgramCache(cacheDir)
	}
	return c
}

func (c *Compiler) Compile(desc *libgpu.ProgramDesc) (libgpu.Program, error) {
	if desc.GLSL == "" {
		return nil, fmt.Errorf("program %q has no glsl source: %w: %w", desc.Name, libgpu.ErrCompile, libgpu.ErrUnsupported)
	}
	id, err := buildProgram(desc.Name, gl.FRAGMENT_SHADER, FragmentSource(desc), c.cache)
	if err != nil {
		return nil, err
	}
	return &Program{
		glId:     id,
		name:     desc.Name,
		textures: desc.Textures,
		uniforms: desc.Uniforms,
	}, nil
}

type Program struct {
	glId     uint32
	name     string
	textures int
	uniforms int
}

func (p *Program) Name() string {
	return p.name
}

func (p *Program) Destroy() {
	if p.glId != 0 {
		gl.DeleteProgram(p.glId)
		p.glId = 0
	}
}

type pipeline struct {
	glId    uint32
	dev     *Device
	label   string
	program *Program
	target  libgpu.Format
}

func (p *pipeline) Destroy() {
	if p.glId == 0 {
		return
	}
	if p.dev.state.ProgramPipeline == p.glId {
		p.dev.state.BindProgramPipeline(0)
	}
	gl.DeleteProgramPipelines(1, &p.glId)
	p.glId = 0
}
