package pluginhost

import (
	"github.com/friendsincode/stellatune/internal/stellaerr"
	"github.com/friendsincode/stellatune/internal/telemetry"
)

func stellaerrShadowCopyFailed(cause error) *stellaerr.Error {
	return stellaerr.Wrap(stellaerr.KindShadowCopyFailed, "shadow-copy failed", cause)
}

// pluginCallError wraps a raw plugin-call error as KindPluginInternal, labelled with op,
// and counts it in PluginCallErrors. It takes no kind: callers that need another kind
// wrap the error with stellaerr.Wrap themselves.
func pluginCallError(op string, cause error) *stellaerr.Error {
	if cause == nil {
		return nil
	}
	telemetry.PluginCallErrors.WithLabelValues(op).Inc()
	return stellaerr.Wrap(stellaerr.KindPluginInternal, op, cause)
}
