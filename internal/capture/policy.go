// Copyright 2024 The Vigil Authors
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

package capture

import "bytes"

// DropOnSubstring returns a diversion policy hook that drops any frame
// whose raw bytes contain substr, and passes everything else. Literal
// substring search, no parsing.
func DropOnSubstring(substr string) func(Frame) Decision {
	needle := []byte(substr)
	return func(f Frame) Decision {
		if bytes.Contains(f.Data, needle) {
			return Drop
		}
		return Pass
	}
}
