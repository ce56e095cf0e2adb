package core

import (
	"sort"
	"sync"
)

// Constant is a firmware constant exposed to the host
type Constant struct {
	Name  string
	Value interface{} // string, int or unsigned value
}

// Enumeration maps symbolic names (pin names, channel states) to the
// integer values the wire protocol carries.
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary builds the data dictionary the host fetches over the
// identify command: every command and response format, the registered
// constants and the enumerations, serialized as one JSON object.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cachedDict    []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a dictionary over the given command registry
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		commandReg:    cmdReg,
		version:       "flexpwm-0.1.0",
		buildVersions: "go",
	}
}

// RegisterConstant registers a constant in the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers an enumeration in the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant adds a constant to the dictionary
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{
		Name:  name,
		Value: value,
	}
}

// AddEnumeration adds an enumeration to the dictionary. The values
// slice is copied; later writes by the caller do not leak in.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)

	d.enumerations[name] = &Enumeration{
		Name:   name,
		Values: valuesCopy,
	}
}

// SetVersion sets the firmware version string
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
}

// SetBuildVersions sets the build versions string
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
}

// BuildDictionary serializes and caches the dictionary. Call once after
// all commands, constants and enumerations are registered.
func (d *Dictionary) BuildDictionary() {
	// Fetch from the registry before taking the dictionary lock so the
	// two locks are never held at the same time.
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cachedDict = d.buildJSONLocked(commands, responses)
	DebugPrintln("dictionary built, " + itoa(len(d.cachedDict)) + " bytes")
}

// Generate returns the serialized dictionary, building it on the fly if
// BuildDictionary has not run yet.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cachedDict
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildJSONLocked(commands, responses)
}

// buildJSONLocked serializes the dictionary with pre-fetched command
// data. The JSON is assembled by hand: the firmware targets cannot
// afford reflection, and the object shape is fixed anyway. Caller must
// hold the dictionary lock.
func (d *Dictionary) buildJSONLocked(commands map[string]int, responses map[string]int) []byte {
	result := make([]byte, 0, 1024)

	result = append(result, []byte(`{"version":"`)...)
	result = append(result, []byte(d.version)...)
	result = append(result, []byte(`","build_versions":"`)...)
	result = append(result, []byte(d.buildVersions)...)
	result = append(result, []byte(`","config":{`)...)

	// Constants, sorted by name for a stable encoding
	constNames := make([]string, 0, len(d.constants))
	for name := range d.constants {
		constNames = append(constNames, name)
	}
	sort.Strings(constNames)

	first := true
	for _, name := range constNames {
		c := d.constants[name]
		if !first {
			result = append(result, ',')
		}
		result = append(result, '"')
		result = append(result, []byte(name)...)
		result = append(result, []byte(`":"`)...)
		result = append(result, []byte(valueToString(c.Value))...)
		result = append(result, '"')
		first = false
	}
	result = append(result, []byte(`},"commands":`)...)
	result = appendFormatsByID(result, commands)

	result = append(result, []byte(`,"responses":`)...)
	result = appendFormatsByID(result, responses)

	// Enumerations, sorted by name
	if len(d.enumerations) > 0 {
		result = append(result, []byte(`,"enumerations":{`)...)

		enumNames := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			enumNames = append(enumNames, name)
		}
		sort.Strings(enumNames)

		firstEnum := true
		for _, name := range enumNames {
			enum := d.enumerations[name]
			if !firstEnum {
				result = append(result, ',')
			}
			result = append(result, '"')
			result = append(result, []byte(name)...)
			result = append(result, []byte(`":{`)...)

			// Empty strings are unnamed slots and stay out of the JSON
			firstValue := true
			for i, value := range enum.Values {
				if value == "" {
					continue
				}
				if !firstValue {
					result = append(result, ',')
				}
				result = append(result, '"')
				result = append(result, []byte(value)...)
				result = append(result, []byte(`":`)...)
				result = append(result, []byte(itoa(i))...)
				firstValue = false
			}
			result = append(result, '}')
			firstEnum = false
		}
		result = append(result, '}')
	}

	result = append(result, '}')
	return result
}

// appendFormatsByID appends a {"format":id,...} object ordered by ID
func appendFormatsByID(result []byte, formats map[string]int) []byte {
	byID := make(map[int]string, len(formats))
	ids := make([]int, 0, len(formats))
	for format, id := range formats {
		byID[id] = format
		ids = append(ids, id)
	}
	sort.Ints(ids)

	result = append(result, '{')
	for i, id := range ids {
		if i > 0 {
			result = append(result, ',')
		}
		result = append(result, '"')
		result = append(result, []byte(byID[id])...)
		result = append(result, []byte(`":`)...)
		result = append(result, []byte(itoa(id))...)
	}
	result = append(result, '}')
	return result
}

// GetChunk returns a copy of count dictionary bytes starting at offset.
// Requests past the end return the remaining bytes, or an empty slice.
// The copy keeps the transmit path from aliasing the cached dictionary.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()

	if offset >= uint32(len(data)) {
		return []byte{}
	}

	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
