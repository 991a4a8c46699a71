package pipeline

import (
	"fmt"
	"strings"

	"unluajit/internal/luafmt"
)

// Source renders the decompiled chunk. Nested functions print inline;
// functions that failed to decompile are noted up front and appear as
// placeholder bodies.
func (r *Result) Source() string {
	var sb strings.Builder
	if len(r.Funcs) == 0 {
		return ""
	}
	for i := range r.Funcs {
		if r.Funcs[i].Err != nil {
			fmt.Fprintf(&sb, "-- function %d not decompiled: %v\n", i, r.Funcs[i].Err)
		}
	}
	if root := &r.Funcs[0]; root.Tree != nil {
		sb.WriteString(luafmt.Chunk(root.Tree))
	}
	return sb.String()
}
