// Command libqueryengine builds the engine as a C shared library:
//
//	go build -buildmode=c-shared -o libqueryengine.so ./cmd/libqueryengine
//
// Every entry point returns a qe_result by value. Strings in a result are
// owned by the caller and must be released with qe_result_free or
// qe_free_string.
package main

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	int32_t kind;
	int64_t handle;
	char*   payload;
	char*   source;
} qe_result;
*/
import "C"

import (
	"unsafe"
)

// goBytes copies a NUL-terminated C string. A NULL pointer yields nil.
func goBytes(p *C.char) []byte {
	if p == nil {
		return nil
	}
	n := C.strlen(p)
	return C.GoBytes(unsafe.Pointer(p), C.int(n))
}

func toC(r result) C.qe_result {
	r = encodeOutput(r)
	out := C.qe_result{
		kind:   C.int32_t(r.kind),
		handle: C.int64_t(r.handle),
	}
	if r.hasPayload {
		out.payload = C.CString(r.payload)
	}
	if r.source != "" {
		out.source = C.CString(r.source)
	}
	return out
}

//export qe_create
func qe_create(schema, datasourceURL *C.char) C.qe_result {
	return toC(doCreate(goBytes(schema), goBytes(datasourceURL)))
}

//export qe_create_with_options
func qe_create_with_options(options *C.char) C.qe_result {
	return toC(doCreateWithOptions(goBytes(options)))
}

//export qe_connect
func qe_connect(handle C.int64_t) C.qe_result {
	return toC(doConnect(int64(handle)))
}

//export qe_disconnect
func qe_disconnect(handle C.int64_t) C.qe_result {
	return toC(doDisconnect(int64(handle)))
}

//export qe_query
func qe_query(handle C.int64_t, body, txID *C.char) C.qe_result {
	return toC(doQuery(int64(handle), goBytes(body), goBytes(txID)))
}

//export qe_start_transaction
func qe_start_transaction(handle C.int64_t, input *C.char) C.qe_result {
	return toC(doStartTransaction(int64(handle), goBytes(input)))
}

//export qe_commit_transaction
func qe_commit_transaction(handle C.int64_t, txID *C.char) C.qe_result {
	return toC(doCommitTransaction(int64(handle), goBytes(txID)))
}

//export qe_rollback_transaction
func qe_rollback_transaction(handle C.int64_t, txID *C.char) C.qe_result {
	return toC(doRollbackTransaction(int64(handle), goBytes(txID)))
}

//export qe_dmmf
func qe_dmmf(schema *C.char) C.qe_result {
	return toC(doDmmf(goBytes(schema)))
}

//export qe_get_dmmf
func qe_get_dmmf(params *C.char) C.qe_result {
	return toC(doGetDmmf(goBytes(params)))
}

//export qe_version
func qe_version() C.qe_result {
	return toC(doVersion())
}

//export qe_format
func qe_format(schema, params *C.char) C.qe_result {
	return toC(doFormat(goBytes(schema), goBytes(params)))
}

//export qe_lint
func qe_lint(schema *C.char) C.qe_result {
	return toC(doLint(goBytes(schema)))
}

//export qe_get_config
func qe_get_config(params *C.char) C.qe_result {
	return toC(doGetConfig(goBytes(params)))
}

//export qe_validate
func qe_validate(schema *C.char) C.qe_result {
	return toC(doValidate(goBytes(schema)))
}

//export qe_free_string
func qe_free_string(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

//export qe_result_free
func qe_result_free(r *C.qe_result) {
	if r == nil {
		return
	}
	qe_free_string(r.payload)
	qe_free_string(r.source)
	r.payload = nil
	r.source = nil
}

func main() {}
