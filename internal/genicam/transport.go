package genicam

// #cgo LDFLAGS: -ldl
// #include <dlfcn.h>
// #include <stdlib.h>
import "C"

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"
)

// requiredSymbols is the public GenTL procedural API (§6). Presence of
// every symbol is required for a transport-layer module to be usable.
var requiredSymbols = []string{
	"GCInitLib", "GCCloseLib",
	"TLOpen", "TLClose",
	"IFOpen", "IFClose",
	"DevOpenDataStream",
	"DSAnnounceBuffer", "DSQueueBuffer", "DSRevokeBuffer",
	"DSStartAcquisition", "DSStopAcquisition", "DSFlushQueue",
	"GCRegisterEvent", "GCUnregisterEvent", "EventGetData", "EventKill",
	"GCReadPort", "GCWritePort",
}

// Module is one loaded GenTL transport-layer shared object: a facade over
// its C ABI, resolved once at startup and never mutated afterward (§9
// "global mutable state" design note), loaded with dlopen/dlsym the same
// way original_source/src/thorlabs/tl_camera_sdk_load.c loads its vendor
// SDK on non-Windows platforms.
type Module struct {
	Path    string
	handle  unsafe.Pointer
	symbols map[string]unsafe.Pointer
}

// Facade is the process-wide singleton map of loaded transport modules. Its
// Init returns a boolean and its teardown is a no-op, per the design note on
// avoiding double-free across reload cycles.
type Facade struct {
	mu      sync.Mutex
	modules map[string]*Module
}

var facade = &Facade{modules: make(map[string]*Module)}

// GlobalFacade returns the process-wide transport-layer facade.
func GlobalFacade() *Facade { return facade }

// Init discovers and loads every *.cti (or *.so) module on searchPath
// (colon-separated), the way original_source/src/genicam_node.cpp walks a
// configurable search path. XML parse, ZIP scan, or function-pointer load
// failures disable just that module; other modules continue (§4.3 failure
// policy).
func (f *Facade) Init(searchPath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := false
	for _, dir := range strings.Split(searchPath, string(os.PathListSeparator)) {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := filepath.Ext(e.Name())
			if ext != ".cti" && ext != ".so" {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if m, err := loadModule(path); err == nil {
				f.modules[path] = m
				ok = true
			}
		}
	}
	return ok
}

// Modules returns every successfully loaded transport module.
func (f *Facade) Modules() []*Module {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Module, 0, len(f.modules))
	for _, m := range f.modules {
		out = append(out, m)
	}
	return out
}

// Teardown is a deliberate no-op: unloading vendor libraries is not
// required during shutdown (§5 shared resources).
func (f *Facade) Teardown() {}

func loadModule(path string) (*Module, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	handle := C.dlopen(cpath, C.RTLD_NOW)
	if handle == nil {
		return nil, fmt.Errorf("genicam: dlopen %s: %s", path, C.GoString(C.dlerror()))
	}
	syms := make(map[string]unsafe.Pointer, len(requiredSymbols))
	for _, name := range requiredSymbols {
		cname := C.CString(name)
		addr := C.dlsym(handle, cname)
		C.free(unsafe.Pointer(cname))
		if addr == nil {
			return nil, fmt.Errorf("genicam: module %s missing required symbol %s", path, name)
		}
		syms[name] = addr
	}
	return &Module{Path: path, handle: handle, symbols: syms}, nil
}

// Symbol returns the resolved address of a named GenTL function, for use by
// the cgo trampoline that actually invokes it.
func (m *Module) Symbol(name string) (unsafe.Pointer, bool) {
	addr, ok := m.symbols[name]
	return addr, ok
}
