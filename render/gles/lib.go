package gles

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

const (
	eglLibName  = "libEGL.so.1"
	glesLibName = "libGLESv2.so.2"
)

// EGL constants, see EGL/egl.h and EGL/eglext.h
const (
	eglNone             = 0x3038
	eglSuccess          = 0x3000
	eglAlphaSize        = 0x3021
	eglBlueSize         = 0x3022
	eglGreenSize        = 0x3023
	eglRedSize          = 0x3024
	eglSurfaceType      = 0x3033
	eglWindowBit        = 0x0004
	eglNativeVisualID   = 0x302E
	eglRenderableType   = 0x3040
	eglOpenGLES2Bit     = 0x0004
	eglVendor           = 0x3053
	eglVersion          = 0x3054
	eglExtensions       = 0x3055
	eglContextClientVer = 0x3098
	eglOpenGLESAPI      = 0x30A0
	eglPlatformGBMKHR   = 0x31D7
	eglNoContext        = 0
	eglNoSurface        = 0
	eglTrue             = 1
)

// GLES2 constants, see GLES2/gl2.h
const (
	glColorBufferBit = 0x4000
	glTriangles      = 0x0004
	glFloat          = 0x1406
	glRenderer       = 0x1F01
	glVersion        = 0x1F02
	glExtensions     = 0x1F03
	glFragmentShader = 0x8B30
	glVertexShader   = 0x8B31
	glCompileStatus  = 0x8B81
	glLinkStatus     = 0x8B82
	glInfoLogLength  = 0x8B84
)

var (
	loadOnce sync.Once
	loadErr  error

	eglGetProcAddress   func(name string) uintptr
	eglGetDisplay       func(native uintptr) uintptr
	eglInitialize       func(dpy uintptr, major, minor *int32) uint32
	eglTerminate        func(dpy uintptr) uint32
	eglQueryString      func(dpy uintptr, name int32) uintptr
	eglBindAPI          func(api uint32) uint32
	eglGetConfigs       func(dpy uintptr, configs *uintptr, size int32, num *int32) uint32
	eglChooseConfig     func(dpy uintptr, attribs *int32, configs *uintptr, size int32, num *int32) uint32
	eglGetConfigAttrib  func(dpy, config uintptr, attr int32, value *int32) uint32
	eglCreateContext    func(dpy, config, share uintptr, attribs *int32) uintptr
	eglDestroyContext   func(dpy, ctx uintptr) uint32
	eglCreateWindowSurf func(dpy, config, win uintptr, attribs *int32) uintptr
	eglDestroySurface   func(dpy, surface uintptr) uint32
	eglMakeCurrent      func(dpy, draw, read, ctx uintptr) uint32
	eglSwapBuffers      func(dpy, surface uintptr) uint32
	eglGetError         func() int32

	eglGetPlatformDisplayEXT func(platform uint32, native uintptr, attribs *int32) uintptr

	glGetString               func(name uint32) uintptr
	glViewport                func(x, y, width, height int32)
	glClearColor              func(r, g, b, a float32)
	glClear                   func(mask uint32)
	glFinish                  func()
	glCreateShader            func(typ uint32) uint32
	glShaderSource            func(shader uint32, count int32, src **byte, length *int32)
	glCompileShader           func(shader uint32)
	glGetShaderiv             func(shader, name uint32, value *int32)
	glGetShaderInfoLog        func(shader uint32, size int32, length *int32, log *byte)
	glDeleteShader            func(shader uint32)
	glCreateProgram           func() uint32
	glAttachShader            func(program, shader uint32)
	glBindAttribLocation      func(program, index uint32, name *byte)
	glLinkProgram             func(program uint32)
	glGetProgramiv            func(program, name uint32, value *int32)
	glGetProgramInfoLog       func(program uint32, size int32, length *int32, log *byte)
	glDeleteProgram           func(program uint32)
	glUseProgram              func(program uint32)
	glGetUniformLocation      func(program uint32, name *byte) int32
	glUniformMatrix4fv        func(location, count int32, transpose bool, value *float32)
	glVertexAttribPointer     func(index uint32, size int32, typ uint32, normalized bool, stride int32, ptr unsafe.Pointer)
	glEnableVertexAttribArray func(index uint32)
	glDisableVertexAttribArr  func(index uint32)
	glDrawArrays              func(mode uint32, first, count int32)
)

func load() error {
	loadOnce.Do(func() {
		egl, err := purego.Dlopen(eglLibName, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			loadErr = fmt.Errorf("load %s: %w", eglLibName, err)
			return
		}
		gl, err := purego.Dlopen(glesLibName, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			loadErr = fmt.Errorf("load %s: %w", glesLibName, err)
			return
		}

		purego.RegisterLibFunc(&eglGetProcAddress, egl, "eglGetProcAddress")
		purego.RegisterLibFunc(&eglGetDisplay, egl, "eglGetDisplay")
		purego.RegisterLibFunc(&eglInitialize, egl, "eglInitialize")
		purego.RegisterLibFunc(&eglTerminate, egl, "eglTerminate")
		purego.RegisterLibFunc(&eglQueryString, egl, "eglQueryString")
		purego.RegisterLibFunc(&eglBindAPI, egl, "eglBindAPI")
		purego.RegisterLibFunc(&eglGetConfigs, egl, "eglGetConfigs")
		purego.RegisterLibFunc(&eglChooseConfig, egl, "eglChooseConfig")
		purego.RegisterLibFunc(&eglGetConfigAttrib, egl, "eglGetConfigAttrib")
		purego.RegisterLibFunc(&eglCreateContext, egl, "eglCreateContext")
		purego.RegisterLibFunc(&eglDestroyContext, egl, "eglDestroyContext")
		purego.RegisterLibFunc(&eglCreateWindowSurf, egl, "eglCreateWindowSurface")
		purego.RegisterLibFunc(&eglDestroySurface, egl, "eglDestroySurface")
		purego.RegisterLibFunc(&eglMakeCurrent, egl, "eglMakeCurrent")
		purego.RegisterLibFunc(&eglSwapBuffers, egl, "eglSwapBuffers")
		purego.RegisterLibFunc(&eglGetError, egl, "eglGetError")

		if fn := eglGetProcAddress("eglGetPlatformDisplayEXT"); fn != 0 {
			purego.RegisterFunc(&eglGetPlatformDisplayEXT, fn)
		}

		purego.RegisterLibFunc(&glGetString, gl, "glGetString")
		purego.RegisterLibFunc(&glViewport, gl, "glViewport")
		purego.RegisterLibFunc(&glClearColor, gl, "glClearColor")
		purego.RegisterLibFunc(&glClear, gl, "glClear")
		purego.RegisterLibFunc(&glFinish, gl, "glFinish")
		purego.RegisterLibFunc(&glCreateShader, gl, "glCreateShader")
		purego.RegisterLibFunc(&glShaderSource, gl, "glShaderSource")
		purego.RegisterLibFunc(&glCompileShader, gl, "glCompileShader")
		purego.RegisterLibFunc(&glGetShaderiv, gl, "glGetShaderiv")
		purego.RegisterLibFunc(&glGetShaderInfoLog, gl, "glGetShaderInfoLog")
		purego.RegisterLibFunc(&glDeleteShader, gl, "glDeleteShader")
		purego.RegisterLibFunc(&glCreateProgram, gl, "glCreateProgram")
		purego.RegisterLibFunc(&glAttachShader, gl, "glAttachShader")
		purego.RegisterLibFunc(&glBindAttribLocation, gl, "glBindAttribLocation")
		purego.RegisterLibFunc(&glLinkProgram, gl, "glLinkProgram")
		purego.RegisterLibFunc(&glGetProgramiv, gl, "glGetProgramiv")
		purego.RegisterLibFunc(&glGetProgramInfoLog, gl, "glGetProgramInfoLog")
		purego.RegisterLibFunc(&glDeleteProgram, gl, "glDeleteProgram")
		purego.RegisterLibFunc(&glUseProgram, gl, "glUseProgram")
		purego.RegisterLibFunc(&glGetUniformLocation, gl, "glGetUniformLocation")
		purego.RegisterLibFunc(&glUniformMatrix4fv, gl, "glUniformMatrix4fv")
		purego.RegisterLibFunc(&glVertexAttribPointer, gl, "glVertexAttribPointer")
		purego.RegisterLibFunc(&glEnableVertexAttribArray, gl, "glEnableVertexAttribArray")
		purego.RegisterLibFunc(&glDisableVertexAttribArr, gl, "glDisableVertexAttribArray")
		purego.RegisterLibFunc(&glDrawArrays, gl, "glDrawArrays")
	})
	return loadErr
}

// cstring returns a NUL terminated copy of s.
func cstring(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

// gostring copies the NUL terminated string at p.
func gostring(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}
