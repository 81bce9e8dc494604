// Package gles draws scanout content with OpenGL ES 2 on an EGL context
// bound to GBM surfaces. libEGL and libGLESv2 are loaded at run time.
package gles

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/mode"
)

// Stage of the GL setup.
type Stage string

const (
	StageInitialize    Stage = "initialize"
	StageChooseConfig  Stage = "choose-config"
	StageCreateContext Stage = "create-context"
	StageCreateSurface Stage = "create-surface"
)

var (
	ErrNoConfig        = errors.New("no EGL config matches the format")
	ErrNotNativeWindow = errors.New("surface has no native window")
	ErrSwapFailed      = errors.New("eglSwapBuffers failed")
	ErrMakeCurrent     = errors.New("eglMakeCurrent failed")
)

// StageError is a GL setup failure. Code is the EGL error code, zero when
// the failure did not come from EGL.
type StageError struct {
	Stage Stage
	Code  int32
	Err   error
}

func (e *StageError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gl %s: %v (egl error 0x%x)", e.Stage, e.Err, e.Code)
	}
	return fmt.Sprintf("gl %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	code := int32(0)
	if eglGetError != nil {
		if c := eglGetError(); c != eglSuccess {
			code = c
		}
	}
	return &StageError{Stage: stage, Code: code, Err: err}
}

// NativeWindow is a buffer backend surface usable as EGL window, ie.: a
// gbm.Surface.
type NativeWindow interface {
	Ptr() uintptr
}

// Context is an EGL display, config and GLES2 context.
type Context struct {
	Format uint32

	display uintptr
	config  uintptr
	context uintptr
	log     zerolog.Logger
}

// NewContext initializes EGL on the native GBM device and creates a GLES2
// context whose config renders in format.
func NewContext(gbmDevice uintptr, format uint32, logger zerolog.Logger) (*Context, error) {
	if err := load(); err != nil {
		return nil, &StageError{Stage: StageInitialize, Err: err}
	}

	c := &Context{Format: format, log: logger}
	if eglGetPlatformDisplayEXT != nil {
		c.display = eglGetPlatformDisplayEXT(eglPlatformGBMKHR, gbmDevice, nil)
	} else {
		c.display = eglGetDisplay(gbmDevice)
	}
	if c.display == 0 {
		return nil, stageErr(StageInitialize, errors.New("no EGL display"))
	}

	var major, minor int32
	if eglInitialize(c.display, &major, &minor) != eglTrue {
		return nil, stageErr(StageInitialize, errors.New("eglInitialize failed"))
	}
	logger.Info().
		Int32("major", major).
		Int32("minor", minor).
		Str("version", gostring(eglQueryString(c.display, eglVersion))).
		Str("vendor", gostring(eglQueryString(c.display, eglVendor))).
		Msg("EGL initialized")
	logger.Debug().Str("extensions", gostring(eglQueryString(c.display, eglExtensions))).Msg("EGL")

	if eglBindAPI(eglOpenGLESAPI) != eglTrue {
		c.Close()
		return nil, stageErr(StageInitialize, errors.New("eglBindAPI failed"))
	}

	config, err := c.chooseConfig(format)
	if err != nil {
		c.Close()
		return nil, stageErr(StageChooseConfig, err)
	}
	c.config = config

	attribs := []int32{eglContextClientVer, 2, eglNone}
	c.context = eglCreateContext(c.display, c.config, eglNoContext, &attribs[0])
	runtime.KeepAlive(attribs)
	if c.context == 0 {
		c.Close()
		return nil, stageErr(StageCreateContext, errors.New("eglCreateContext failed"))
	}
	return c, nil
}

var configAttribs = []int32{
	eglSurfaceType, eglWindowBit,
	eglRedSize, 1,
	eglGreenSize, 1,
	eglBlueSize, 1,
	eglAlphaSize, 0,
	eglRenderableType, eglOpenGLES2Bit,
	eglNone,
}

// chooseConfig picks the first config when format is zero, otherwise
// the first whose native visual is format.
func (c *Context) chooseConfig(format uint32) (uintptr, error) {
	var count int32
	if eglGetConfigs(c.display, nil, 0, &count) != eglTrue || count < 1 {
		return 0, errors.New("no EGL configs")
	}
	configs := make([]uintptr, count)
	var matched int32
	if eglChooseConfig(c.display, &configAttribs[0], &configs[0], count, &matched) != eglTrue || matched < 1 {
		return 0, errors.New("eglChooseConfig failed")
	}
	configs = configs[:matched]

	visuals := make([]uint32, len(configs))
	for i, cfg := range configs {
		var id int32
		if eglGetConfigAttrib(c.display, cfg, eglNativeVisualID, &id) == eglTrue {
			visuals[i] = uint32(id)
		}
	}
	i, ok := matchVisual(visuals, format)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoConfig, mode.FourccString(format))
	}
	return configs[i], nil
}

func matchVisual(visuals []uint32, format uint32) (int, bool) {
	if len(visuals) == 0 {
		return 0, false
	}
	if format == 0 {
		return 0, true
	}
	for i, v := range visuals {
		if v == format {
			return i, true
		}
	}
	return 0, false
}

func (c *Context) Close() error {
	if c.display == 0 {
		return nil
	}
	eglMakeCurrent(c.display, eglNoSurface, eglNoSurface, eglNoContext)
	if c.context != 0 {
		eglDestroyContext(c.display, c.context)
		c.context = 0
	}
	eglTerminate(c.display)
	c.display = 0
	return nil
}

// Window renders a Scene into a buffer surface.
type Window struct {
	// Finish waits for the GPU before swapping.
	Finish bool

	ctx     *Context
	surface *buffer.Surface
	egl     uintptr
	scene   Scene
	frame   int
	ready   bool
	drawn   bool
}

// NewWindow creates an EGL window surface on surface, whose native
// surface must implement NativeWindow.
func (c *Context) NewWindow(surface *buffer.Surface, scene Scene) (*Window, error) {
	native, ok := surface.Native().(NativeWindow)
	if !ok {
		return nil, &StageError{Stage: StageCreateSurface, Err: ErrNotNativeWindow}
	}
	egl := eglCreateWindowSurf(c.display, c.config, native.Ptr(), nil)
	if egl == 0 {
		return nil, stageErr(StageCreateSurface, fmt.Errorf("eglCreateWindowSurface %s", surface.Name))
	}
	w := &Window{ctx: c, surface: surface, egl: egl, scene: scene}
	if err := w.makeCurrent(); err != nil {
		eglDestroySurface(c.display, egl)
		return nil, &StageError{Stage: StageCreateSurface, Err: err}
	}
	c.log.Debug().
		Str("surface", surface.Name).
		Str("renderer", gostring(glGetString(glRenderer))).
		Str("version", gostring(glGetString(glVersion))).
		Str("extensions", gostring(glGetString(glExtensions))).
		Msg("GLES window")
	return w, nil
}

func (w *Window) makeCurrent() error {
	if eglMakeCurrent(w.ctx.display, w.egl, w.egl, w.ctx.context) != eglTrue {
		return fmt.Errorf("%w: 0x%x", ErrMakeCurrent, eglGetError())
	}
	return nil
}

// Frame is the number of frames drawn so far.
func (w *Window) Frame() int { return w.frame }

// Prepare draws the next frame without presenting it.
func (w *Window) Prepare() error {
	if err := w.makeCurrent(); err != nil {
		return err
	}
	if !w.ready {
		if err := w.scene.Setup(w.surface.Width, w.surface.Height); err != nil {
			return err
		}
		w.ready = true
	}
	w.frame++
	w.scene.Draw(w.frame)
	w.drawn = true
	return nil
}

// LockFront swaps the frame drawn by Prepare, drawing one first if
// needed, and locks the buffer holding it.
func (w *Window) LockFront() (*buffer.Object, error) {
	if !w.drawn {
		if err := w.Prepare(); err != nil {
			return nil, err
		}
	}
	w.drawn = false
	if err := w.makeCurrent(); err != nil {
		return nil, err
	}
	if w.Finish {
		glFinish()
	}
	if eglSwapBuffers(w.ctx.display, w.egl) != eglTrue {
		return nil, fmt.Errorf("%w: 0x%x", ErrSwapFailed, eglGetError())
	}
	return w.surface.LockFront()
}

func (w *Window) Release(bo *buffer.Object) error { return w.surface.Release(bo) }

// Produce draws and locks the next frame.
func (w *Window) Produce() (*buffer.Object, error) { return w.LockFront() }

func (w *Window) Close() error {
	if w.egl == 0 {
		return nil
	}
	if w.ready {
		w.makeCurrent()
		w.scene.Close()
	}
	eglMakeCurrent(w.ctx.display, eglNoSurface, eglNoSurface, eglNoContext)
	eglDestroySurface(w.ctx.display, w.egl)
	w.egl = 0
	return nil
}
