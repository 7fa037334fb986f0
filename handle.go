package sophia

import (
	"github.com/ostafen/sophia/native"
	"go.uber.org/zap"
)

// Native is implemented by every handle owning an engine resource.
type Native interface {
	// Type returns the engine type name of the resource.
	Type() (string, error)
	// Destroy releases the resource. It must be called exactly once.
	Destroy() error
}

// handle wraps exactly one engine resource. ctl is a back-reference used only
// to read diagnostics; it never owns the control interface.
type handle struct {
	eng       native.Engine
	ptr       native.Pointer
	ctl       *Ctl
	logger    *zap.Logger
	destroyed bool
}

func (h *handle) valid() error {
	if h.destroyed {
		return ErrDestroyed
	}
	return nil
}

func (h *handle) fail() error {
	if h.ctl == nil || h.ctl.env.destroyed {
		return ErrUndefined
	}
	return lastError(h.eng, h.ctl.ptr)
}

func (h *handle) Type() (string, error) {
	if err := h.valid(); err != nil {
		return "", err
	}

	t := h.eng.Type(h.ptr)
	if t == "" {
		return "", h.fail()
	}
	return t, nil
}

// Destroy releases the resource. The handle is marked destroyed before the
// release so that a failed release is reported but never retried.
func (h *handle) Destroy() error {
	if h.destroyed {
		return ErrDestroyed
	}
	h.destroyed = true

	if rc := h.eng.Destroy(h.ptr); rc != native.StatusOK {
		err := h.fail()
		h.logger.Warn("destroy failed", zap.Uint64("handle", uint64(h.ptr)), zap.Error(err))
		return err
	}
	return nil
}

func (h *handle) child(ptr native.Pointer) handle {
	return handle{eng: h.eng, ptr: ptr, ctl: h.ctl, logger: h.logger}
}
