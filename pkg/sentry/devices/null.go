// Copyright 2026 The gVisor Authors.
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

package devices

import (
	"context"

	"gvisor.dev/filecore/pkg/sentry/usermem"
)

// NewNull returns the operations of the null device: reads return end of
// file and writes are discarded.
func NewNull() Ops {
	return Ops{
		Name: "null",
		Read: func(context.Context, usermem.IOSequence) (int64, error) {
			return 0, nil
		},
		Write: func(_ context.Context, src usermem.IOSequence) (int64, error) {
			return src.NumBytes(), nil
		},
	}
}
