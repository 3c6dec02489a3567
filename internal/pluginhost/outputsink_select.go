package pluginhost

import (
	"github.com/friendsincode/stellatune/internal/pluginhost/cabi"
	"github.com/friendsincode/stellatune/internal/stellaerr"
)

// OpenOutputSink resolves pluginID's output-sink capability, negotiates desired against
// the plugin's actual deliverable spec, opens an instance against target, and returns
// it plus a closer releasing the generation's instance reservation. Used exclusively by
// the sink worker's dedicated thread (spec §3/§4.B).
func (h *Host) OpenOutputSink(pluginID, target string, desired cabi.AudioSpec) (*cabi.OutputSink, cabi.NegotiatedSpec, func(), error) {
	gen, ok := h.ActiveGeneration(pluginID)
	if !ok {
		return nil, cabi.NegotiatedSpec{}, nil, stellaerr.New(stellaerr.KindInvalidArg, "no active plugin generation for id "+pluginID)
	}
	if !gen.IncInflight() {
		return nil, cabi.NegotiatedSpec{}, nil, stellaerr.New(stellaerr.KindNotPrepared, "plugin generation is no longer active")
	}
	defer gen.DecInflight()

	sink, err := cabi.NewOutputSink(gen.Vtable())
	if err != nil {
		return nil, cabi.NegotiatedSpec{}, nil, pluginCallError("open output sink", err)
	}

	negotiated, err := sink.Negotiate(desired)
	if err != nil {
		return nil, cabi.NegotiatedSpec{}, nil, stellaerr.Wrap(stellaerr.KindSpecQueryFailed, "output sink negotiate_spec failed", err)
	}

	if err := sink.Open(target, negotiated.Spec); err != nil {
		return nil, cabi.NegotiatedSpec{}, nil, stellaerr.Wrap(stellaerr.KindUnsupported, "output sink open failed", err)
	}
	gen.RegisterInstance()

	closer := func() {
		sink.Close()
		gen.DeregisterInstance()
	}
	return sink, negotiated, closer, nil
}
