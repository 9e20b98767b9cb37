//go:build windows

package main

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/wailsapp/wails/v2/pkg/options"
	"golang.org/x/sys/windows"
)

// WebView2 registers its own IDropTarget on Chrome_WidgetWin_0. We replace it
// with ours and keep the original: while armed, drags carrying CF_HDROP are
// consumed here (paths only, no file content); every other drag, and every
// drag while disarmed, is forwarded to the original so the page sees it.
var (
	modOle32   = windows.NewLazySystemDLL("ole32.dll")
	modShell32 = windows.NewLazySystemDLL("shell32.dll")

	procOleInitialize    = modOle32.NewProc("OleInitialize")
	procRevokeDragDrop   = modOle32.NewProc("RevokeDragDrop")
	procRegisterDragDrop = modOle32.NewProc("RegisterDragDrop")
	procReleaseStgMedium = modOle32.NewProc("ReleaseStgMedium")
	procDragQueryFileW   = modShell32.NewProc("DragQueryFileW")

	// user32dll is declared in trayicon_windows.go.
	pEnumChildWindows = user32dll.NewProc("EnumChildWindows")
	pGetClassNameW    = user32dll.NewProc("GetClassNameW")
	pGetPropW         = user32dll.NewProc("GetPropW")
)

const (
	cfHDROP         = 15
	dropEffectNone  = 0
	dropEffectCopy  = 1
	tymedHGlobal    = 1
	dvaspectContent = 1
	comSOK          = 0
	comENoInterface = 0x80004002

	// vtable slots shared by IUnknown/IDropTarget/IDataObject
	vtAddRef       = 1
	vtRelease      = 2
	vtDragEnter    = 3
	vtDragOver     = 4
	vtDragLeave    = 5
	vtDrop         = 6
	vtGetData      = 3
	vtQueryGetData = 5
)

var (
	iidIUnknown    = syscall.GUID{Data1: 0x00000000, Data2: 0x0000, Data3: 0x0000, Data4: [8]byte{0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46}}
	iidIDropTarget = syscall.GUID{Data1: 0x00000122, Data2: 0x0000, Data3: 0x0000, Data4: [8]byte{0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46}}
)

// formatETC matches the Win64 layout.
type formatETC struct {
	cfFormat uint16
	_pad     [6]byte
	ptd      uintptr
	dwAspect uint32
	lindex   int32
	tymed    uint32
	_pad2    [4]byte
}

type stgMEDIUM struct {
	tymed          uint32
	_pad           uint32
	hGlobal        uintptr
	pUnkForRelease uintptr
}

type dropTargetVtbl struct {
	QueryInterface uintptr
	AddRef         uintptr
	Release        uintptr
	DragEnter      uintptr
	DragOver       uintptr
	DragLeave      uintptr
	Drop           uintptr
}

type dragRoute int32

const (
	routeNone dragRoute = iota
	routeOurs
	routeOriginal
)

// goDropTarget implements IDropTarget. lpVtbl must stay the first field.
type goDropTarget struct {
	lpVtbl   *dropTargetVtbl
	refCount int32
	host     *windowsDropHost

	// per-drag state, touched only on the window thread
	route    dragRoute
	hasFiles bool
}

var (
	dropTargetVtblOnce sync.Once
	sharedDropVtbl     *dropTargetVtbl
)

func newDropTargetVtbl() *dropTargetVtbl {
	dropTargetVtblOnce.Do(func() {
		sharedDropVtbl = &dropTargetVtbl{
			QueryInterface: syscall.NewCallback(dtQueryInterface),
			AddRef:         syscall.NewCallback(dtAddRef),
			Release:        syscall.NewCallback(dtRelease),
			DragEnter:      syscall.NewCallback(dtDragEnter),
			DragOver:       syscall.NewCallback(dtDragOver),
			DragLeave:      syscall.NewCallback(dtDragLeave),
			Drop:           syscall.NewCallback(dtDrop),
		}
	})
	return sharedDropVtbl
}

// windowsDropHost owns the swapped drop target on the WebView2 window.
type windowsDropHost struct {
	dropSubscribers

	armed atomic.Bool

	mu       sync.Mutex
	hwnd     uintptr
	original uintptr // WebView2's IDropTarget, AddRef'd by us
	target   *goDropTarget
}

func newNativeDropHost() nativeDropHost {
	return &windowsDropHost{}
}

// dragAndDropOptions leaves the Wails file-drop hook off; CF_HDROP is read
// by our own target instead.
func dragAndDropOptions() *options.DragAndDrop {
	return &options.DragAndDrop{
		EnableFileDrop:     false,
		DisableWebViewDrop: false,
	}
}

// SetNativeDropEnabled implements ChannelToggler. The route of a drag in
// progress is re-evaluated on its next DragOver.
func (h *windowsDropHost) SetNativeDropEnabled(_ context.Context, enabled bool) error {
	h.mu.Lock()
	installed := h.target != nil
	h.mu.Unlock()
	if !installed {
		return errors.New("native drop target not installed")
	}
	h.armed.Store(enabled)
	return nil
}

// install registers our IDropTarget on the WebView2 content window.
func (h *windowsDropHost) install(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Wails only calls CoInitializeEx, which is not enough for RegisterDragDrop.
	ret, _, _ := procOleInitialize.Call(0)
	Log.Debug("dragdrop: OleInitialize", "hresult", ret)

	title, _ := windows.UTF16PtrFromString(AppName)
	hwnd, _, _ := pFindWindowW.Call(0, uintptr(unsafe.Pointer(title)))
	if hwnd == 0 {
		return errors.New("main window not found")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.target != nil {
		return nil
	}
	target := &goDropTarget{lpVtbl: newDropTargetVtbl(), refCount: 1, host: h}

	candidates := append(findAllChromeWidgetChildren(hwnd), hwnd)
	for _, ch := range candidates {
		original := originalDropTarget(ch)
		if original != 0 {
			comCall(original, vtAddRef)
		}
		procRevokeDragDrop.Call(ch)
		ret, _, _ = procRegisterDragDrop.Call(ch, uintptr(unsafe.Pointer(target)))
		if ret == comSOK {
			h.hwnd, h.original, h.target = ch, original, target
			h.armed.Store(true)
			Log.Info("dragdrop: drop target installed", "hwnd", ch, "forwarding", original != 0)
			return nil
		}
		Log.Warn("dragdrop: RegisterDragDrop failed", "hwnd", ch, "hresult", ret)
		if original != 0 {
			procRegisterDragDrop.Call(ch, original)
			comCall(original, vtRelease)
		}
	}
	return errors.New("no window accepted the drop target")
}

// uninstall puts WebView2's own target back.
func (h *windowsDropHost) uninstall() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.target == nil {
		return
	}
	procRevokeDragDrop.Call(h.hwnd)
	if h.original != 0 {
		procRegisterDragDrop.Call(h.hwnd, h.original)
		comCall(h.original, vtRelease)
	}
	h.hwnd, h.original, h.target = 0, 0, nil
	h.armed.Store(false)
}

func (h *windowsDropHost) originalTarget() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.original
}

// originalDropTarget reads the IDropTarget OLE stored on the window.
func originalDropTarget(hwnd uintptr) uintptr {
	name, _ := windows.UTF16PtrFromString("OleDropTargetInterface")
	ret, _, _ := pGetPropW.Call(hwnd, uintptr(unsafe.Pointer(name)))
	return ret
}

// comCall invokes vtable slot index on a COM object.
func comCall(obj uintptr, index int, args ...uintptr) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	fn := *(*uintptr)(unsafe.Pointer(vtbl + uintptr(index)*unsafe.Sizeof(uintptr(0))))
	ret, _, _ := syscall.SyscallN(fn, append([]uintptr{obj}, args...)...)
	return ret
}

func setEffect(pdwEffect uintptr, effect uint32) {
	if pdwEffect != 0 {
		*(*uint32)(unsafe.Pointer(pdwEffect)) = effect
	}
}

// forward passes an IDropTarget call to WebView2's target, or refuses the
// drag when there is none.
func (dt *goDropTarget) forward(index int, pdwEffect uintptr, args ...uintptr) uintptr {
	original := dt.host.originalTarget()
	if original == 0 {
		setEffect(pdwEffect, dropEffectNone)
		return comSOK
	}
	return comCall(original, index, args...)
}

func dtQueryInterface(this, riid, ppvObject uintptr) uintptr {
	if ppvObject == 0 {
		return comENoInterface
	}
	guid := (*syscall.GUID)(unsafe.Pointer(riid))
	if *guid == iidIUnknown || *guid == iidIDropTarget {
		*(*uintptr)(unsafe.Pointer(ppvObject)) = this
		dtAddRef(this)
		return comSOK
	}
	*(*uintptr)(unsafe.Pointer(ppvObject)) = 0
	return comENoInterface
}

func dtAddRef(this uintptr) uintptr {
	dt := (*goDropTarget)(unsafe.Pointer(this))
	return uintptr(atomic.AddInt32(&dt.refCount, 1))
}

func dtRelease(this uintptr) uintptr {
	dt := (*goDropTarget)(unsafe.Pointer(this))
	return uintptr(atomic.AddInt32(&dt.refCount, -1))
}

// On x64: this=RCX, pDataObj=RDX, grfKeyState=R8, pt=R9 (POINTL packed), pdwEffect=stack.
func dtDragEnter(this, pDataObj, grfKeyState, pt, pdwEffect uintptr) uintptr {
	dt := (*goDropTarget)(unsafe.Pointer(this))
	dt.hasFiles = pDataObj != 0 && dataObjHasHDROP(pDataObj)
	if dt.hasFiles && dt.host.armed.Load() {
		dt.route = routeOurs
		setEffect(pdwEffect, dropEffectCopy)
		return comSOK
	}
	dt.route = routeOriginal
	return dt.forward(vtDragEnter, pdwEffect, pDataObj, grfKeyState, pt, pdwEffect)
}

func dtDragOver(this, grfKeyState, pt, pdwEffect uintptr) uintptr {
	dt := (*goDropTarget)(unsafe.Pointer(this))
	// Re-armed while a files drag is over the page: take it over.
	if dt.route == routeOriginal && dt.hasFiles && dt.host.armed.Load() {
		dt.forward(vtDragLeave, 0)
		dt.route = routeOurs
	}
	if dt.route == routeOurs {
		setEffect(pdwEffect, dropEffectCopy)
		return comSOK
	}
	return dt.forward(vtDragOver, pdwEffect, grfKeyState, pt, pdwEffect)
}

func dtDragLeave(this uintptr) uintptr {
	dt := (*goDropTarget)(unsafe.Pointer(this))
	route := dt.route
	dt.route, dt.hasFiles = routeNone, false
	if route == routeOriginal {
		return dt.forward(vtDragLeave, 0)
	}
	return comSOK
}

func dtDrop(this, pDataObj, grfKeyState, pt, pdwEffect uintptr) uintptr {
	dt := (*goDropTarget)(unsafe.Pointer(this))
	route := dt.route
	dt.route, dt.hasFiles = routeNone, false

	if route != routeOurs {
		return dt.forward(vtDrop, pdwEffect, pDataObj, grfKeyState, pt, pdwEffect)
	}

	setEffect(pdwEffect, dropEffectNone)
	if pDataObj == 0 {
		return comSOK
	}
	paths := extractHDROPPaths(pDataObj)
	Log.Debug("dragdrop: native drop", "count", len(paths))
	if len(paths) > 0 {
		setEffect(pdwEffect, dropEffectCopy)
		// never block the COM thread
		go dt.host.publish(paths)
	}
	return comSOK
}

func hdropFormat() formatETC {
	return formatETC{
		cfFormat: cfHDROP,
		dwAspect: dvaspectContent,
		lindex:   -1,
		tymed:    tymedHGlobal,
	}
}

// dataObjHasHDROP asks IDataObject::QueryGetData for CF_HDROP.
func dataObjHasHDROP(pDataObj uintptr) bool {
	fe := hdropFormat()
	return comCall(pDataObj, vtQueryGetData, uintptr(unsafe.Pointer(&fe))) == comSOK
}

// extractHDROPPaths reads only the path strings behind CF_HDROP, never file
// content, so it is safe for any file size.
func extractHDROPPaths(pDataObj uintptr) []string {
	fe := hdropFormat()
	var medium stgMEDIUM
	if ret := comCall(pDataObj, vtGetData, uintptr(unsafe.Pointer(&fe)), uintptr(unsafe.Pointer(&medium))); ret != comSOK {
		Log.Debug("dragdrop: GetData failed", "hresult", ret)
		return nil
	}
	defer procReleaseStgMedium.Call(uintptr(unsafe.Pointer(&medium)))

	hdrop := medium.hGlobal
	count, _, _ := procDragQueryFileW.Call(hdrop, 0xFFFFFFFF, 0, 0)

	var paths []string
	buf := make([]uint16, 4096)
	for i := uintptr(0); i < count; i++ {
		n, _, _ := procDragQueryFileW.Call(hdrop, i, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
		if n > 0 {
			paths = append(paths, syscall.UTF16ToString(buf[:n]))
		}
	}
	return paths
}

var (
	chromeHwndsMu sync.Mutex
	chromeHwnds   []uintptr
	enumChildCb   = syscall.NewCallback(func(childHwnd, lParam uintptr) uintptr {
		var className [256]uint16
		pGetClassNameW.Call(childHwnd, uintptr(unsafe.Pointer(&className[0])), 256)
		if syscall.UTF16ToString(className[:]) == "Chrome_WidgetWin_0" {
			chromeHwnds = append(chromeHwnds, childHwnd)
		}
		return 1
	})
)

// findAllChromeWidgetChildren lists every Chrome_WidgetWin_0 descendant.
func findAllChromeWidgetChildren(parentHwnd uintptr) []uintptr {
	chromeHwndsMu.Lock()
	defer chromeHwndsMu.Unlock()

	chromeHwnds = nil
	pEnumChildWindows.Call(parentHwnd, enumChildCb, 0)
	result := make([]uintptr, len(chromeHwnds))
	copy(result, chromeHwnds)
	return result
}
