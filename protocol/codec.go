package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Both wire codecs represent a Request or Response as a single tagged
// object: the envelope's own fields (id, origin) merged with the
// payload's fields and a "type" discriminator, matching the upstream
// Rust project's internally-tagged enum encoding. Batch/BatchResult
// nest one such object per element under "operations"/"results".
//
// wireCodec abstracts the two supported formats so the tagging logic
// below is written once and shared by JSON and MsgPack.
type wireCodec interface {
	marshal(v any) ([]byte, error)
	unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

var operationTypes = map[OperationKind]reflect.Type{
	OpFileRead:       reflect.TypeOf(FileRead{}),
	OpFileReadText:   reflect.TypeOf(FileReadText{}),
	OpFileWrite:      reflect.TypeOf(FileWrite{}),
	OpFileWriteText:  reflect.TypeOf(FileWriteText{}),
	OpFileAppend:     reflect.TypeOf(FileAppend{}),
	OpFileAppendText: reflect.TypeOf(FileAppendText{}),
	OpDirRead:        reflect.TypeOf(DirRead{}),
	OpDirCreate:      reflect.TypeOf(DirCreate{}),
	OpRemove:         reflect.TypeOf(Remove{}),
	OpCopy:           reflect.TypeOf(Copy{}),
	OpRename:         reflect.TypeOf(Rename{}),
	OpWatch:          reflect.TypeOf(Watch{}),
	OpUnwatch:        reflect.TypeOf(Unwatch{}),
	OpExists:         reflect.TypeOf(Exists{}),
	OpMetadata:       reflect.TypeOf(MetadataOp{}),
	OpSetPermissions: reflect.TypeOf(SetPermissions{}),
	OpSearch:         reflect.TypeOf(Search{}),
	OpCancelSearch:   reflect.TypeOf(CancelSearch{}),
	OpProcSpawn:      reflect.TypeOf(ProcSpawn{}),
	OpProcKill:       reflect.TypeOf(ProcKill{}),
	OpProcStdin:      reflect.TypeOf(ProcStdin{}),
	OpProcResizePty:  reflect.TypeOf(ProcResizePty{}),
	OpSystemInfo:     reflect.TypeOf(SystemInfoOp{}),
	OpVersion:        reflect.TypeOf(VersionOp{}),
}

var resultTypes = map[ResultKind]reflect.Type{
	ResOk:            reflect.TypeOf(Ok{}),
	ResError:         reflect.TypeOf(ErrorResult{}),
	ResBlob:          reflect.TypeOf(Blob{}),
	ResText:          reflect.TypeOf(Text{}),
	ResDirEntries:    reflect.TypeOf(DirEntries{}),
	ResChanged:       reflect.TypeOf(Changed{}),
	ResExists:        reflect.TypeOf(ExistsResult{}),
	ResMetadata:      reflect.TypeOf(MetadataResult{}),
	ResSearchStarted: reflect.TypeOf(SearchStarted{}),
	ResSearchResults: reflect.TypeOf(SearchResults{}),
	ResSearchDone:    reflect.TypeOf(SearchDone{}),
	ResProcSpawned:   reflect.TypeOf(ProcSpawned{}),
	ResProcStdout:    reflect.TypeOf(ProcStdout{}),
	ResProcStderr:    reflect.TypeOf(ProcStderr{}),
	ResProcDone:      reflect.TypeOf(ProcDone{}),
	ResSystemInfo:    reflect.TypeOf(SystemInfoResult{}),
	ResVersion:       reflect.TypeOf(VersionResult{}),
}

// encodeOperation renders op (including a nested Batch) as the
// map-of-fields form shared by both wire formats, with "type" injected.
func encodeOperation(c wireCodec, op Operation) (map[string]any, error) {
	if b, ok := op.(Batch); ok {
		items := make([]any, len(b.Operations))
		for i, sub := range b.Operations {
			item, err := encodeOperation(c, sub)
			if err != nil {
				return nil, fmt.Errorf("protocol: encoding batch operation %d: %w", i, err)
			}
			items[i] = item
		}
		return map[string]any{"type": string(OpBatch), "operations": items}, nil
	}

	raw, err := c.marshal(op)
	if err != nil {
		return nil, fmt.Errorf("protocol: encoding %s: %w", op.OperationKind(), err)
	}
	var m map[string]any
	if err := c.unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: re-decoding %s: %w", op.OperationKind(), err)
	}
	if m == nil {
		m = map[string]any{}
	}
	m["type"] = string(op.OperationKind())
	return m, nil
}

// decodeOperation is the inverse of encodeOperation.
func decodeOperation(c wireCodec, m map[string]any) (Operation, error) {
	kind, err := takeKind(m)
	if err != nil {
		return nil, err
	}

	if OperationKind(kind) == OpBatch {
		rawOps, _ := m["operations"].([]any)
		ops := make([]Operation, len(rawOps))
		for i, ro := range rawOps {
			rm, ok := ro.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("protocol: batch operation %d is not an object", i)
			}
			op, err := decodeOperation(c, rm)
			if err != nil {
				return nil, fmt.Errorf("protocol: decoding batch operation %d: %w", i, err)
			}
			ops[i] = op
		}
		return Batch{Operations: ops}, nil
	}

	t, ok := operationTypes[OperationKind(kind)]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown operation type %q", kind)
	}
	body, err := c.marshal(m)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(t)
	if err := c.unmarshal(body, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("protocol: decoding %s: %w", kind, err)
	}
	op, ok := ptr.Elem().Interface().(Operation)
	if !ok {
		return nil, fmt.Errorf("protocol: %s does not implement Operation", t)
	}
	return op, nil
}

// encodeResult renders res (including a nested BatchResult) as the
// map-of-fields form shared by both wire formats, with "type" injected.
func encodeResult(c wireCodec, res Result) (map[string]any, error) {
	if b, ok := res.(BatchResult); ok {
		items := make([]any, len(b.Results))
		for i, sub := range b.Results {
			item, err := encodeResult(c, sub)
			if err != nil {
				return nil, fmt.Errorf("protocol: encoding batch result %d: %w", i, err)
			}
			items[i] = item
		}
		return map[string]any{"type": string(ResBatch), "results": items}, nil
	}

	raw, err := c.marshal(res)
	if err != nil {
		return nil, fmt.Errorf("protocol: encoding %s: %w", res.ResultKind(), err)
	}
	var m map[string]any
	if err := c.unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: re-decoding %s: %w", res.ResultKind(), err)
	}
	if m == nil {
		m = map[string]any{}
	}
	m["type"] = string(res.ResultKind())
	return m, nil
}

// decodeResult is the inverse of encodeResult.
func decodeResult(c wireCodec, m map[string]any) (Result, error) {
	kind, err := takeKind(m)
	if err != nil {
		return nil, err
	}

	if ResultKind(kind) == ResBatch {
		rawResults, _ := m["results"].([]any)
		results := make([]Result, len(rawResults))
		for i, rr := range rawResults {
			rm, ok := rr.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("protocol: batch result %d is not an object", i)
			}
			res, err := decodeResult(c, rm)
			if err != nil {
				return nil, fmt.Errorf("protocol: decoding batch result %d: %w", i, err)
			}
			results[i] = res
		}
		return BatchResult{Results: results}, nil
	}

	t, ok := resultTypes[ResultKind(kind)]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown result type %q", kind)
	}
	body, err := c.marshal(m)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(t)
	if err := c.unmarshal(body, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("protocol: decoding %s: %w", kind, err)
	}
	res, ok := ptr.Elem().Interface().(Result)
	if !ok {
		return nil, fmt.Errorf("protocol: %s does not implement Result", t)
	}
	return res, nil
}

// takeKind reads and removes the "type" discriminator from a decoded
// envelope map.
func takeKind(m map[string]any) (string, error) {
	raw, ok := m["type"]
	if !ok {
		return "", fmt.Errorf("protocol: envelope missing \"type\" field")
	}
	kind, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("protocol: envelope \"type\" field is not a string")
	}
	delete(m, "type")
	return kind, nil
}

// toUint32 coerces a decoded numeric value (float64 for JSON, one of
// several int/uint widths for MsgPack) to uint32.
func toUint32(v any) (uint32, error) {
	switch n := v.(type) {
	case float64:
		return uint32(n), nil
	case float32:
		return uint32(n), nil
	case int:
		return uint32(n), nil
	case int8:
		return uint32(n), nil
	case int16:
		return uint32(n), nil
	case int32:
		return uint32(n), nil
	case int64:
		return uint32(n), nil
	case uint:
		return uint32(n), nil
	case uint8:
		return uint32(n), nil
	case uint16:
		return uint32(n), nil
	case uint32:
		return n, nil
	case uint64:
		return uint32(n), nil
	default:
		return 0, fmt.Errorf("protocol: id field has unsupported type %T", v)
	}
}

func marshalRequest(c wireCodec, r Request) ([]byte, error) {
	m, err := encodeOperation(c, r.Payload)
	if err != nil {
		return nil, err
	}
	m["id"] = uint32(r.ID)
	return c.marshal(m)
}

func unmarshalRequest(c wireCodec, data []byte) (Request, error) {
	var m map[string]any
	if err := c.unmarshal(data, &m); err != nil {
		return Request{}, err
	}
	idRaw, ok := m["id"]
	if !ok {
		return Request{}, fmt.Errorf("protocol: request missing \"id\" field")
	}
	id, err := toUint32(idRaw)
	if err != nil {
		return Request{}, err
	}
	delete(m, "id")

	op, err := decodeOperation(c, m)
	if err != nil {
		return Request{}, err
	}
	return Request{ID: RequestID(id), Payload: op}, nil
}

func marshalResponse(c wireCodec, r Response) ([]byte, error) {
	m, err := encodeResult(c, r.Payload)
	if err != nil {
		return nil, err
	}
	m["origin"] = uint32(r.Origin)
	return c.marshal(m)
}

func unmarshalResponse(c wireCodec, data []byte) (Response, error) {
	var m map[string]any
	if err := c.unmarshal(data, &m); err != nil {
		return Response{}, err
	}
	originRaw, ok := m["origin"]
	if !ok {
		return Response{}, fmt.Errorf("protocol: response missing \"origin\" field")
	}
	origin, err := toUint32(originRaw)
	if err != nil {
		return Response{}, err
	}
	delete(m, "origin")

	res, err := decodeResult(c, m)
	if err != nil {
		return Response{}, err
	}
	return Response{Origin: RequestID(origin), Payload: res}, nil
}

// EncodeRequestJSON renders r as a single JSON object.
func EncodeRequestJSON(r Request) ([]byte, error) { return marshalRequest(jsonCodec{}, r) }

// DecodeRequestJSON parses a JSON object produced by EncodeRequestJSON.
func DecodeRequestJSON(data []byte) (Request, error) { return unmarshalRequest(jsonCodec{}, data) }

// EncodeResponseJSON renders r as a single JSON object.
func EncodeResponseJSON(r Response) ([]byte, error) { return marshalResponse(jsonCodec{}, r) }

// DecodeResponseJSON parses a JSON object produced by EncodeResponseJSON.
func DecodeResponseJSON(data []byte) (Response, error) { return unmarshalResponse(jsonCodec{}, data) }

// EncodeRequestMsgpack renders r as a single MsgPack map.
func EncodeRequestMsgpack(r Request) ([]byte, error) { return marshalRequest(msgpackCodec{}, r) }

// DecodeRequestMsgpack parses a MsgPack map produced by EncodeRequestMsgpack.
func DecodeRequestMsgpack(data []byte) (Request, error) {
	return unmarshalRequest(msgpackCodec{}, data)
}

// EncodeResponseMsgpack renders r as a single MsgPack map.
func EncodeResponseMsgpack(r Response) ([]byte, error) { return marshalResponse(msgpackCodec{}, r) }

// DecodeResponseMsgpack parses a MsgPack map produced by EncodeResponseMsgpack.
func DecodeResponseMsgpack(data []byte) (Response, error) {
	return unmarshalResponse(msgpackCodec{}, data)
}

// MarshalJSON implements json.Marshaler.
func (r Request) MarshalJSON() ([]byte, error) { return EncodeRequestJSON(r) }

// UnmarshalJSON implements json.Unmarshaler.
func (r *Request) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeRequestJSON(data)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) { return EncodeResponseJSON(r) }

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeResponseJSON(data)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (r Request) EncodeMsgpack(enc *msgpack.Encoder) error {
	data, err := EncodeRequestMsgpack(r)
	if err != nil {
		return err
	}
	return enc.Encode(msgpack.RawMessage(data))
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (r *Request) DecodeMsgpack(dec *msgpack.Decoder) error {
	var raw msgpack.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	decoded, err := DecodeRequestMsgpack(raw)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (r Response) EncodeMsgpack(enc *msgpack.Encoder) error {
	data, err := EncodeResponseMsgpack(r)
	if err != nil {
		return err
	}
	return enc.Encode(msgpack.RawMessage(data))
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (r *Response) DecodeMsgpack(dec *msgpack.Decoder) error {
	var raw msgpack.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	decoded, err := DecodeResponseMsgpack(raw)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}
