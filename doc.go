// Package drm provides a library to interact with DRM
// (Direct Rendering Manager) and KMS (Kernel Mode Setting) interfaces.
// DRM is a low level interface for the graphics card (gpu) and this package
// enables the creation of graphics library on top of the kernel drm/kms
// subsystem.
//
// The sub packages build the plane composition demos on top of it:
// mode (KMS objects), display (connector/mode/CRTC discovery), buffer
// (scanout buffers and framebuffers), atomic (property based commits),
// render (buffer content) and present (the frame loops).
package drm
