package protocol

import (
	"reflect"
	"testing"
)

func roundTripRequest(t *testing.T, req Request) {
	t.Helper()

	jsonBytes, err := EncodeRequestJSON(req)
	if err != nil {
		t.Fatalf("EncodeRequestJSON: %v", err)
	}
	gotJSON, err := DecodeRequestJSON(jsonBytes)
	if err != nil {
		t.Fatalf("DecodeRequestJSON: %v", err)
	}
	if !reflect.DeepEqual(req, gotJSON) {
		t.Errorf("json round-trip mismatch:\n  want %#v\n  got  %#v", req, gotJSON)
	}

	mpBytes, err := EncodeRequestMsgpack(req)
	if err != nil {
		t.Fatalf("EncodeRequestMsgpack: %v", err)
	}
	gotMP, err := DecodeRequestMsgpack(mpBytes)
	if err != nil {
		t.Fatalf("DecodeRequestMsgpack: %v", err)
	}
	if !reflect.DeepEqual(req, gotMP) {
		t.Errorf("msgpack round-trip mismatch:\n  want %#v\n  got  %#v", req, gotMP)
	}
}

func roundTripResponse(t *testing.T, resp Response) {
	t.Helper()

	jsonBytes, err := EncodeResponseJSON(resp)
	if err != nil {
		t.Fatalf("EncodeResponseJSON: %v", err)
	}
	gotJSON, err := DecodeResponseJSON(jsonBytes)
	if err != nil {
		t.Fatalf("DecodeResponseJSON: %v", err)
	}
	if !reflect.DeepEqual(resp, gotJSON) {
		t.Errorf("json round-trip mismatch:\n  want %#v\n  got  %#v", resp, gotJSON)
	}

	mpBytes, err := EncodeResponseMsgpack(resp)
	if err != nil {
		t.Fatalf("EncodeResponseMsgpack: %v", err)
	}
	gotMP, err := DecodeResponseMsgpack(mpBytes)
	if err != nil {
		t.Fatalf("DecodeResponseMsgpack: %v", err)
	}
	if !reflect.DeepEqual(resp, gotMP) {
		t.Errorf("msgpack round-trip mismatch:\n  want %#v\n  got  %#v", resp, gotMP)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	pty := PtySize{Rows: 24, Cols: 80}

	cases := map[string]Request{
		"file_read": {ID: 1, Payload: FileRead{Path: "/tmp/a"}},
		"file_write_empty_data": {ID: 2, Payload: FileWrite{Path: "/tmp/a", Data: nil}},
		"file_write_data":       {ID: 3, Payload: FileWrite{Path: "/tmp/a", Data: []byte{0, 1, 2, 255}}},
		"dir_read": {ID: 4, Payload: DirRead{Path: "/tmp", Depth: 2, Absolute: true}},
		"watch": {ID: 5, Payload: Watch{
			Path:      "/tmp",
			Recursive: true,
			Only:      []ChangeKind{ChangeCreate, ChangeDelete},
		}},
		"proc_spawn_pty": {ID: 6, Payload: ProcSpawn{
			Cmd:         Cmd("/bin/echo hello world"),
			Environment: Environment{"FOO": "bar"},
			CurrentDir:  "/tmp",
			Pty:         &pty,
		}},
		"proc_spawn_simple": {ID: 7, Payload: ProcSpawn{Cmd: Cmd("/bin/ls")}},
		"search": {ID: 8, Payload: Search{Query: SearchQuery{
			Target: SearchTargetContents,
			Condition: SearchCondition{
				Kind:  SearchConditionContains,
				Value: "needle",
			},
			Paths: []string{"/tmp"},
			Options: SearchOptions{
				MaxDepth: 3,
				Hidden:   true,
			},
		}}},
		"version": {ID: 9, Payload: VersionOp{}},
		"system_info": {ID: 10, Payload: SystemInfoOp{}},
		"batch": {ID: 11, Payload: Batch{Operations: []Operation{
			FileRead{Path: "/a"},
			Exists{Path: "/b"},
			Batch{Operations: []Operation{
				DirCreate{Path: "/c", All: true},
			}},
		}}},
	}

	for name, req := range cases {
		req := req
		t.Run(name, func(t *testing.T) {
			roundTripRequest(t, req)
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	code := int32(1)

	cases := map[string]Response{
		"ok":    {Origin: 1, Payload: Ok{}},
		"error": {Origin: 2, Payload: ErrorResult{Kind: "not_found", Description: "no such file"}},
		"blob":  {Origin: 3, Payload: Blob{Data: []byte{9, 8, 7}}},
		"dir_entries": {Origin: 4, Payload: DirEntries{
			Entries: []DirEntry{{Path: "/tmp/a", FileType: FileTypeFile, Depth: 1}},
			Errors:  []string{"permission denied: /tmp/b"},
		}},
		"changed": {Origin: 5, Payload: Changed{Change{
			TimestampEpochS: 1000,
			Kind:            ChangeModify,
			Path:            "/tmp/a",
		}}},
		"search_results": {Origin: 6, Payload: SearchResults{
			ID: 7,
			Matches: []SearchMatch{
				{Path: "/tmp/a", Lines: &SearchLines{Start: 1, End: 2}, Submatches: []SearchSubmatch{{Start: 0, End: 3, Value: "foo"}}},
			},
		}},
		"proc_done_success": {Origin: 8, Payload: ProcDone{ID: 42, Success: true}},
		"proc_done_failure": {Origin: 9, Payload: ProcDone{ID: 42, Success: false, Code: &code}},
		"version": {Origin: 10, Payload: VersionResult{
			ServerVersion:   "dev",
			ProtocolVersion: "0.1.0",
			Capabilities:    []string{"exec", "fs_io"},
		}},
		"batch": {Origin: 11, Payload: BatchResult{Results: []Result{
			Ok{},
			ExistsResult{Value: true},
			BatchResult{Results: []Result{Ok{}}},
		}}},
	}

	for name, resp := range cases {
		resp := resp
		t.Run(name, func(t *testing.T) {
			roundTripResponse(t, resp)
		})
	}
}
