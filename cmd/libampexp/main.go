// Command libampexp builds the Amplitude Experiment bridge as a C shared
// library for native hosts such as Unity:
//
//	go build -buildmode=c-shared -o libampexp.so ./cmd/libampexp
//
// The library owns a single bridge for the lifetime of the process. Strings
// returned by the library must be released with AmplitudeExperiment_FreeString.
// Outcomes are delivered through the function registered with
// AmplitudeExperiment_SetCallback, from a Go-owned thread, one at a time.
package main

/*
#include <stdlib.h>
#include <stdbool.h>

typedef void (*AmplitudeExperimentCallback)(const char* target, const char* method, const char* message);

static inline void amplitude_experiment_invoke(AmplitudeExperimentCallback cb, const char* target, const char* method, const char* message) {
	if (cb != NULL) {
		cb(target, method, message);
	}
}
*/
import "C"

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
	"unsafe"

	amplitude "github.com/open-feature/go-sdk-contrib/bridges/amplitude"
)

const shutdownTimeout = 10 * time.Second

var errNoCallback = errors.New("no native callback registered")

var (
	bridgeOnce sync.Once
	bridge     *amplitude.Bridge

	callbackMu sync.RWMutex
	callback   C.AmplitudeExperimentCallback
)

func instance() *amplitude.Bridge {
	bridgeOnce.Do(func() {
		bridge = amplitude.New(bridgeOptions(
			os.Getenv(configFileEnv),
			os.Stderr,
			amplitude.DispatcherFunc(dispatch),
		)...)
	})
	return bridge
}

// dispatch hands a delivery to the registered native callback. The C strings
// are only valid for the duration of the call.
func dispatch(_ context.Context, delivery amplitude.Delivery) error {
	callbackMu.RLock()
	cb := callback
	callbackMu.RUnlock()
	if cb == nil {
		return errNoCallback
	}

	target := C.CString(delivery.Target)
	defer C.free(unsafe.Pointer(target))
	method := C.CString(delivery.Outcome.Method())
	defer C.free(unsafe.Pointer(method))
	message := C.CString(delivery.Outcome.Message())
	defer C.free(unsafe.Pointer(message))

	C.amplitude_experiment_invoke(cb, target, method, message)
	return nil
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

// cString returns NULL for an empty string.
func cString(s string) *C.char {
	if s == "" {
		return nil
	}
	return C.CString(s)
}

//export AmplitudeExperiment_Initialize
func AmplitudeExperiment_Initialize(apiKey, instanceName *C.char) {
	// Errors are logged by the bridge; hosts poll IsInitialized.
	_ = instance().Initialize(goString(apiKey), goString(instanceName))
}

//export AmplitudeExperiment_Fetch
func AmplitudeExperiment_Fetch(userID, deviceID, userPropertiesJSON *C.char) {
	instance().Fetch(goString(userID), goString(deviceID), goString(userPropertiesJSON))
}

// AmplitudeExperiment_GetVariant returns {"key","value","payload"} for the
// flag, or NULL when there is no cached variant.
//
//export AmplitudeExperiment_GetVariant
func AmplitudeExperiment_GetVariant(flagKey *C.char) *C.char {
	return cString(instance().GetVariantJSON(goString(flagKey)))
}

//export AmplitudeExperiment_GetAllVariants
func AmplitudeExperiment_GetAllVariants() *C.char {
	return C.CString(instance().AllVariantsJSON())
}

//export AmplitudeExperiment_Clear
func AmplitudeExperiment_Clear() {
	_ = instance().Clear()
}

//export AmplitudeExperiment_SetCallbackTarget
func AmplitudeExperiment_SetCallbackTarget(target *C.char) {
	instance().SetCallbackTarget(goString(target))
}

// AmplitudeExperiment_SetCallback registers the function outcomes are
// delivered to. NULL unregisters it.
//
//export AmplitudeExperiment_SetCallback
func AmplitudeExperiment_SetCallback(cb C.AmplitudeExperimentCallback) {
	callbackMu.Lock()
	defer callbackMu.Unlock()
	callback = cb
}

//export AmplitudeExperiment_IsInitialized
func AmplitudeExperiment_IsInitialized() C.bool {
	return C.bool(instance().IsInitialized())
}

// AmplitudeExperiment_Shutdown waits for queued fetches and their callbacks,
// then stops the client. The bridge cannot be used afterwards.
//
//export AmplitudeExperiment_Shutdown
func AmplitudeExperiment_Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = instance().Close(ctx)
}

//export AmplitudeExperiment_FreeString
func AmplitudeExperiment_FreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func main() {}
