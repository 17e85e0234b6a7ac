// Package model holds the tokenizer-facing types the engine consumes:
// a vocabulary mapping token ids to their text, with special tokens
// flagged separately.
package model

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type Special int32

const (
	SpecialBOS Special = iota
	SpecialEOS
)

// Token types, following the GGUF convention.
const (
	TOKEN_TYPE_NORMAL int32 = iota + 1
	TOKEN_TYPE_UNKNOWN
	TOKEN_TYPE_CONTROL
	TOKEN_TYPE_USER_DEFINED
	TOKEN_TYPE_UNUSED
	TOKEN_TYPE_BYTE
)

// Vocabulary is an ordered token-id-to-text table supplied by the
// inference backend. It is treated as immutable for the lifetime of
// any index compiled against it.
type Vocabulary struct {
	Values []string
	Types  []int32

	BOS, EOS []int32

	specialOnce sync.Once
	special     []string

	valuesOnce sync.Once
	values     map[string]int32

	fingerprintOnce sync.Once
	fingerprint     uint64
}

func (v *Vocabulary) Is(id int32, special Special) bool {
	switch special {
	case SpecialBOS:
		return slices.Contains(v.BOS, id)
	case SpecialEOS:
		return slices.Contains(v.EOS, id)
	default:
		return false
	}
}

// IsControl reports whether id is a control token, which never appears
// in generated text.
func (v *Vocabulary) IsControl(id int32) bool {
	return len(v.Types) > int(id) && v.Types[id] == TOKEN_TYPE_CONTROL
}

func (v *Vocabulary) Encode(s string) int32 {
	v.valuesOnce.Do(func() {
		v.values = make(map[string]int32, len(v.Values))
		for i, value := range v.Values {
			v.values[value] = int32(i)
		}
	})

	if id, ok := v.values[s]; ok {
		return id
	}

	return -1
}

func (v *Vocabulary) Decode(id int32) string {
	return v.Values[id]
}

func (v *Vocabulary) SpecialVocabulary() []string {
	v.specialOnce.Do(func() {
		for i := range v.Values {
			if v.Types[i] == TOKEN_TYPE_CONTROL || v.Types[i] == TOKEN_TYPE_USER_DEFINED {
				v.special = append(v.special, v.Values[i])
			}
		}
	})

	return v.special
}

// Fingerprint is a content hash of the vocabulary: the token values in
// order plus the special token ids. Two vocabularies with the same
// fingerprint compile to interchangeable indices.
func (v *Vocabulary) Fingerprint() uint64 {
	v.fingerprintOnce.Do(func() {
		h := xxhash.New()
		for _, value := range v.Values {
			h.WriteString(value)
			h.Write([]byte{0})
		}
		var sep [8]byte
		for _, id := range v.EOS {
			sep[0] = byte(id)
			sep[1] = byte(id >> 8)
			sep[2] = byte(id >> 16)
			sep[3] = byte(id >> 24)
			h.Write(sep[:4])
		}
		v.fingerprint = h.Sum64()
	})

	return v.fingerprint
}
