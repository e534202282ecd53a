// Copyright 2024 Stratum, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CIStr is a case insensitive string. Identifiers (database, table, index and
// column names) compare by their lower-case form but print in their original
// form.
type CIStr struct {
	O string `json:"O"` // Original string.
	L string `json:"L"` // Lower case string.
}

// String implements fmt.Stringer interface.
func (s CIStr) String() string {
	return s.O
}

// NewCIStr creates a new CIStr.
func NewCIStr(s string) (cs CIStr) {
	cs.O = s
	cs.L = strings.ToLower(s)
	return
}

// Empty reports whether the string is unset.
func (s CIStr) Empty() bool {
	return s.O == ""
}

// Equal reports case insensitive equality with another CIStr.
func (s CIStr) Equal(other CIStr) bool {
	return s.L == other.L
}

// UnmarshalJSON implements the user defined unmarshal method.
// CIStr can be unmarshaled from a single string for compatibility with
// records written before names carried the lower-case form.
func (s *CIStr) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err == nil {
		// Unmarshal as a plain string.
		s.O = str
		s.L = strings.ToLower(str)
		return nil
	}

	// Unmarshal as a CIStr.
	type T CIStr
	if err := json.Unmarshal(b, (*T)(s)); err != nil {
		return err
	}
	s.L = strings.ToLower(s.O)
	return nil
}
