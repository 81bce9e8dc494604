package gles

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"unsafe"
)

var ErrShader = errors.New("shader build failed")

// Scene draws frames into the current GL surface.
type Scene interface {
	Setup(width, height uint32) error
	Draw(frame int)
	Close()
}

// ClearColor fills every frame with one color.
type ClearColor struct {
	R, G, B, A float32
}

var (
	Red   = ClearColor{R: 1, A: 1}
	Blue  = ClearColor{B: 1, A: 1}
	Black = ClearColor{A: 1}
)

func (c ClearColor) Setup(width, height uint32) error {
	glViewport(0, 0, int32(width), int32(height))
	return nil
}

func (c ClearColor) Draw(int) {
	glClearColor(c.R, c.G, c.B, c.A)
	glClear(glColorBufferBit)
}

func (ClearColor) Close() {}

const (
	triangleVertexShader = `uniform mat4 rotation;
attribute vec4 pos;
attribute vec4 color;
varying vec4 v_color;
void main() {
  gl_Position = rotation * vec4(pos.xyz, 1.0);
  v_color = color;
}
`
	triangleFragmentShader = `precision mediump float;
varying vec4 v_color;
void main() {
  gl_FragColor = v_color;
}
`
)

const (
	attribPos   = 0
	attribColor = 1
)

var (
	triangleVertices = [...]float32{
		-0.5, -0.5,
		0.5, -0.5,
		0.0, 0.5,
	}
	triangleColors = [...]float32{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
)

// Triangles draws Count rotating triangles, each one a frame ahead of
// the previous, on a half transparent black background.
type Triangles struct {
	Count int

	program  uint32
	rotation int32
	layout   []Placement
}

func (t *Triangles) Setup(width, height uint32) error {
	program, err := buildProgram(triangleVertexShader, triangleFragmentShader,
		map[string]uint32{"pos": attribPos, "color": attribColor})
	if err != nil {
		return err
	}
	t.program = program
	name := cstring("rotation")
	t.rotation = glGetUniformLocation(program, name)
	runtime.KeepAlive(name)
	t.layout = Layout(t.Count)
	glViewport(0, 0, int32(width), int32(height))
	return nil
}

func (t *Triangles) Draw(frame int) {
	glUseProgram(t.program)
	glClearColor(0, 0, 0, 0.5)
	glClear(glColorBufferBit)
	for _, p := range t.layout {
		t.drawOne(frame+p.Phase, p.X, p.Y)
	}
	glUseProgram(0)
}

func (t *Triangles) drawOne(frame int, x, y float32) {
	m := Rotation(frame, x, y)
	glUniformMatrix4fv(t.rotation, 1, false, &m[0])
	glVertexAttribPointer(attribPos, 2, glFloat, false, 0, unsafe.Pointer(&triangleVertices[0]))
	glVertexAttribPointer(attribColor, 3, glFloat, false, 0, unsafe.Pointer(&triangleColors[0]))
	glEnableVertexAttribArray(attribPos)
	glEnableVertexAttribArray(attribColor)
	glDrawArrays(glTriangles, 0, 3)
	glDisableVertexAttribArr(attribPos)
	glDisableVertexAttribArr(attribColor)
}

func (t *Triangles) Close() {
	if t.program != 0 {
		glDeleteProgram(t.program)
		t.program = 0
	}
}

// Placement is the position of a triangle and its rotation lead in
// frames.
type Placement struct {
	X, Y  float32
	Phase int
}

// Layout places n triangles: fixed spots up to three, a grid above.
func Layout(n int) []Placement {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []Placement{{0, 0, 0}}
	case n == 2:
		return []Placement{{-0.5, 0, 0}, {0.5, 0, 1}}
	case n == 3:
		return []Placement{{-0.5, -0.5, 0}, {0.5, -0.5, 1}, {-0.5, 0.5, 2}}
	}

	gx := int(math.Sqrt(float64(n)))
	gy := gx
	if gx*gx >= n {
		gx--
		gy--
	} else if gx*(gx+1) >= n {
		gy--
	}
	dx, dy := 1/float32(gx), 1/float32(gy)

	var out []Placement
	for i, ix, iy := 0, 0, 0; i < n; i++ {
		out = append(out, Placement{X: -0.5 + float32(ix)*dx, Y: -0.5 + float32(iy)*dy, Phase: i})
		ix++
		if ix > gx {
			ix = 0
			iy++
		}
		if iy > gy {
			break
		}
	}
	return out
}

// Rotation is the column major matrix turning a triangle around the Y
// axis by one degree per frame, then moving it to x, y.
func Rotation(frame int, x, y float32) [16]float32 {
	angle := float64(frame%360) * math.Pi / 180
	sin, cos := math.Sincos(angle)
	m := [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	m[0] = float32(cos)
	m[2] = float32(sin)
	m[8] = float32(-sin)
	m[10] = float32(cos)
	m[12] += x
	m[13] += y
	return m
}

func buildProgram(vertex, fragment string, attribs map[string]uint32) (uint32, error) {
	vs, err := compileShader(glVertexShader, vertex)
	if err != nil {
		return 0, err
	}
	defer glDeleteShader(vs)
	fs, err := compileShader(glFragmentShader, fragment)
	if err != nil {
		return 0, err
	}
	defer glDeleteShader(fs)

	program := glCreateProgram()
	glAttachShader(program, vs)
	glAttachShader(program, fs)
	for name, loc := range attribs {
		cname := cstring(name)
		glBindAttribLocation(program, loc, cname)
		runtime.KeepAlive(cname)
	}
	glLinkProgram(program)

	var status int32
	glGetProgramiv(program, glLinkStatus, &status)
	if status == 0 {
		msg := infoLog(program, glGetProgramiv, glGetProgramInfoLog)
		glDeleteProgram(program)
		return 0, fmt.Errorf("%w: link: %s", ErrShader, msg)
	}
	return program, nil
}

func compileShader(typ uint32, src string) (uint32, error) {
	shader := glCreateShader(typ)
	csrc := cstring(src)
	glShaderSource(shader, 1, &csrc, nil)
	runtime.KeepAlive(csrc)
	glCompileShader(shader)

	var status int32
	glGetShaderiv(shader, glCompileStatus, &status)
	if status == 0 {
		msg := infoLog(shader, glGetShaderiv, glGetShaderInfoLog)
		glDeleteShader(shader)
		return 0, fmt.Errorf("%w: compile: %s", ErrShader, msg)
	}
	return shader, nil
}

func infoLog(obj uint32, param func(uint32, uint32, *int32), get func(uint32, int32, *int32, *byte)) string {
	var size int32
	param(obj, glInfoLogLength, &size)
	if size <= 1 {
		return "no info log"
	}
	buf := make([]byte, size)
	var n int32
	get(obj, size, &n, &buf[0])
	return string(buf[:n])
}
