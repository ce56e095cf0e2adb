package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestDictionaryGenerate(t *testing.T) {
	reg := NewCommandRegistry()
	dict := NewDictionary(reg)

	dict.AddConstant("TEST_CONST", uint32(42))
	dict.AddConstant("TEST_STR", "hello")
	dict.AddEnumeration("test_pins", []string{"PA0", "PA1", "PB0"})

	reg.Register("test_cmd", "arg=%u", func(data *[]byte) error { return nil })
	reg.Register("test_resp", "val=%u", nil)

	output := string(dict.Generate())

	if !strings.Contains(output, `"version":"flexpwm-0.1.0"`) {
		t.Error("Dictionary missing version")
	}
	if !strings.Contains(output, `"TEST_CONST":"42"`) {
		t.Error("Dictionary missing TEST_CONST")
	}
	if !strings.Contains(output, `"TEST_STR":"hello"`) {
		t.Error("Dictionary missing TEST_STR")
	}
	if !strings.Contains(output, `"PA0":0`) || !strings.Contains(output, `"PB0":2`) {
		t.Error("Dictionary missing test_pins values")
	}
	if !strings.Contains(output, `"test_cmd arg=%u":0`) {
		t.Error("Dictionary missing test_cmd")
	}
	if !strings.Contains(output, `"test_resp val=%u":1`) {
		t.Error("Dictionary missing test_resp")
	}
}

func TestDictionaryValidJSON(t *testing.T) {
	reg := NewCommandRegistry()
	dict := NewDictionary(reg)

	dict.AddConstant("CLOCK_FREQ", uint32(12000000))
	dict.AddConstant("MCU", "mcxn947")
	dict.AddEnumeration("pwm_state", []string{"disabled", "idle_low", "idle_high", "pwm"})
	reg.Register("get_clock", "", func(data *[]byte) error { return nil })
	reg.Register("clock", "clock=%u", nil)

	// The host parses this with a standard JSON decoder, so the
	// hand-assembled bytes have to hold up
	var parsed struct {
		Version       string                    `json:"version"`
		BuildVersions string                    `json:"build_versions"`
		Config        map[string]string         `json:"config"`
		Commands      map[string]int            `json:"commands"`
		Responses     map[string]int            `json:"responses"`
		Enumerations  map[string]map[string]int `json:"enumerations"`
	}
	if err := json.Unmarshal(dict.Generate(), &parsed); err != nil {
		t.Fatalf("Generated dictionary is not valid JSON: %v\n%s", err, dict.Generate())
	}

	if parsed.Config["CLOCK_FREQ"] != "12000000" {
		t.Errorf("Expected CLOCK_FREQ 12000000, got %q", parsed.Config["CLOCK_FREQ"])
	}
	if parsed.Commands["get_clock"] != 0 {
		t.Errorf("Expected get_clock ID 0, got %d", parsed.Commands["get_clock"])
	}
	if parsed.Responses["clock clock=%u"] != 1 {
		t.Errorf("Expected clock response ID 1, got %d", parsed.Responses["clock clock=%u"])
	}
	if parsed.Enumerations["pwm_state"]["idle_high"] != 2 {
		t.Errorf("Expected idle_high value 2, got %d", parsed.Enumerations["pwm_state"]["idle_high"])
	}
}

func TestDictionaryBuildCaches(t *testing.T) {
	reg := NewCommandRegistry()
	dict := NewDictionary(reg)
	reg.Register("cmd", "", func(data *[]byte) error { return nil })

	dict.BuildDictionary()
	first := dict.Generate()

	// Registrations after the build do not change the cached bytes
	reg.Register("late_cmd", "", func(data *[]byte) error { return nil })
	second := dict.Generate()

	if !bytes.Equal(first, second) {
		t.Error("Cached dictionary changed after BuildDictionary")
	}
	if !bytes.Contains(first, []byte(`"cmd":0`)) {
		t.Errorf("Cached dictionary missing cmd: %s", first)
	}
}

func TestDictionaryChunks(t *testing.T) {
	reg := NewCommandRegistry()
	dict := NewDictionary(reg)
	dict.AddConstant("TEST", uint32(123))

	full := dict.Generate()

	chunk1 := dict.GetChunk(0, 10)
	if len(chunk1) != 10 {
		t.Errorf("Expected 10-byte chunk, got %d", len(chunk1))
	}
	if !bytes.Equal(chunk1, full[:10]) {
		t.Errorf("First chunk mismatch: expected %q, got %q", full[:10], chunk1)
	}

	// Reassembling all chunks gives back the whole dictionary
	var assembled []byte
	offset := uint32(0)
	for {
		chunk := dict.GetChunk(offset, 40)
		if len(chunk) == 0 {
			break
		}
		assembled = append(assembled, chunk...)
		offset += uint32(len(chunk))
	}
	if !bytes.Equal(assembled, full) {
		t.Errorf("Reassembled dictionary differs: expected %d bytes, got %d", len(full), len(assembled))
	}

	if chunk := dict.GetChunk(uint32(len(full)), 10); len(chunk) != 0 {
		t.Error("Chunk at end should be empty")
	}
	if chunk := dict.GetChunk(uint32(len(full))+100, 10); len(chunk) != 0 {
		t.Error("Chunk beyond end should be empty")
	}
}

func TestDictionaryEnumerationCopied(t *testing.T) {
	reg := NewCommandRegistry()
	dict := NewDictionary(reg)

	values := []string{"a", "b"}
	dict.AddEnumeration("letters", values)
	values[0] = "mutated"

	output := string(dict.Generate())
	if !strings.Contains(output, `"a":0`) {
		t.Error("Enumeration values not copied on registration")
	}
	if strings.Contains(output, "mutated") {
		t.Error("Caller mutation leaked into the dictionary")
	}
}
