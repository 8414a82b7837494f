package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/hyperterse/queryengine/core/application/services"
	"github.com/hyperterse/queryengine/core/engine"
	"github.com/hyperterse/queryengine/core/infrastructure/cache"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/runtime/schema"
	"github.com/hyperterse/queryengine/core/shared/errors"
	"github.com/hyperterse/queryengine/core/shared/marshal"
)

// kindOK is the result kind of a successful call. Failures use the
// errors.ErrorKind values 1..7.
const kindOK int32 = 0

// result is the Go side of qe_result
type result struct {
	kind    int32
	handle  int64
	payload string
	source  string
	// hasPayload distinguishes an empty payload from a NULL one
	hasPayload bool
}

var log = logger.New("ffi")

// service is created on first use and lives for the life of the process
var service = sync.OnceValue(func() *services.EngineService {
	if _, err := logger.Configure(logger.Options{}); err != nil {
		log.Warnf("Failed to configure logging: %v", err)
	}

	var renderer *schema.Renderer
	c, err := cache.New(context.Background(), os.Getenv(cache.URLEnv))
	if err != nil {
		log.Warnf("DMMF cache disabled: %v", err)
	} else {
		renderer = schema.NewRenderer(c, schema.DefaultDMMFTTL)
	}
	return services.NewEngineService(engine.NewRegistry(), engine.Deps{}, renderer)
})

func ok(payload string) result {
	return result{kind: kindOK, payload: payload, hasPayload: true}
}

func okEmpty() result {
	return result{kind: kindOK}
}

func okHandle(h engine.Handle) result {
	return result{kind: kindOK, handle: int64(h)}
}

// fail converts any error into a result. Every service error is already an
// *errors.ApiError; anything else is reported as Core.
func fail(err error) result {
	apiErr := errors.From(err)
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error()
	}
	return result{
		kind:       int32(apiErr.Kind),
		handle:     -1,
		payload:    marshal.SanitizeOutput(msg),
		source:     marshal.SanitizeOutput(apiErr.Source),
		hasPayload: true,
	}
}

func fromString(value string, err error) result {
	if err != nil {
		return fail(err)
	}
	return ok(value)
}

func fromError(err error) result {
	if err != nil {
		return fail(err)
	}
	return okEmpty()
}

// decode reads a required argument
func decode(buf []byte) (string, error) {
	s, err := marshal.DecodeCString(buf)
	if err != nil {
		return "", errors.Wrap(errors.KindJSONDecode, "invalid string argument: "+err.Error(), err)
	}
	return s, nil
}

func doCreate(schemaBuf, urlBuf []byte) result {
	raw, err := decode(schemaBuf)
	if err != nil {
		return fail(err)
	}
	url, _ := marshal.DecodeOptional(urlBuf)
	h, err := service().Create(raw, url)
	if err != nil {
		return fail(err)
	}
	return okHandle(h)
}

func doCreateWithOptions(optionsBuf []byte) result {
	options, err := decode(optionsBuf)
	if err != nil {
		return fail(err)
	}
	h, err := service().CreateWithOptions(options)
	if err != nil {
		return fail(err)
	}
	return okHandle(h)
}

func doConnect(h int64) result {
	return fromError(service().Connect(context.Background(), engine.Handle(h)))
}

func doDisconnect(h int64) result {
	return fromError(service().Disconnect(context.Background(), engine.Handle(h)))
}

func doQuery(h int64, bodyBuf, txBuf []byte) result {
	body, err := decode(bodyBuf)
	if err != nil {
		return fail(err)
	}
	return fromString(service().Query(context.Background(), engine.Handle(h), body, marshal.ParseTxID(txBuf)))
}

func doStartTransaction(h int64, inputBuf []byte) result {
	input, err := decode(inputBuf)
	if err != nil {
		return fail(err)
	}
	return fromString(service().StartTransaction(context.Background(), engine.Handle(h), input))
}

func doCommitTransaction(h int64, txBuf []byte) result {
	txID, err := decode(txBuf)
	if err != nil {
		return fail(err)
	}
	return fromString(service().CommitTransaction(context.Background(), engine.Handle(h), txID))
}

func doRollbackTransaction(h int64, txBuf []byte) result {
	txID, err := decode(txBuf)
	if err != nil {
		return fail(err)
	}
	return fromString(service().RollbackTransaction(context.Background(), engine.Handle(h), txID))
}

func doDmmf(schemaBuf []byte) result {
	raw, err := decode(schemaBuf)
	if err != nil {
		return fail(err)
	}
	return fromString(service().Dmmf(context.Background(), raw))
}

func doGetDmmf(paramsBuf []byte) result {
	params, err := decode(paramsBuf)
	if err != nil {
		return fail(err)
	}
	return fromString(service().GetDmmf(context.Background(), params))
}

func doVersion() result {
	out, err := json.Marshal(service().Version())
	return fromString(string(out), err)
}

func doFormat(schemaBuf, paramsBuf []byte) result {
	raw, err := decode(schemaBuf)
	if err != nil {
		return fail(err)
	}
	params, _ := marshal.DecodeOptional(paramsBuf)
	return ok(service().Format(raw, params))
}

func doLint(schemaBuf []byte) result {
	raw, err := decode(schemaBuf)
	if err != nil {
		return fail(err)
	}
	return ok(service().Lint(raw))
}

func doGetConfig(paramsBuf []byte) result {
	params, err := decode(paramsBuf)
	if err != nil {
		return fail(err)
	}
	return fromString(service().GetConfig(params))
}

// doValidate returns a NULL payload for a valid schema
func doValidate(schemaBuf []byte) result {
	raw, err := decode(schemaBuf)
	if err != nil {
		return fail(err)
	}
	return fromError(service().Validate(raw))
}

// encodeOutput checks that a payload can cross the boundary. Engine output
// is JSON, which escapes NUL, so a failure here is an internal error.
func encodeOutput(r result) result {
	if !r.hasPayload || r.kind != kindOK {
		return r
	}
	if _, err := marshal.EncodeCString(r.payload); err != nil {
		log.Errorf("Dropping result: %v", err)
		return fail(errors.Wrap(errors.KindCore, err.Error(), err))
	}
	return r
}
