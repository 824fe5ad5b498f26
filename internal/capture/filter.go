package capture

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// filterSnapLen is the snapshot length handed to the BPF compiler.
const filterSnapLen = 65535

// Filter matches raw IP packets against a pcap filter expression
// compiled into a userspace BPF VM. Packets that do not match pass the
// interception point untouched.
type Filter struct {
	expr string
	vm   *bpf.VM
}

// CompileFilter compiles a pcap filter expression for raw IP packets.
// An empty expression matches everything.
func CompileFilter(expr string) (*Filter, error) {
	if expr == "" {
		return &Filter{}, nil
	}

	pcapBpf, err := pcap.CompileBPFFilter(layers.LinkTypeRaw, filterSnapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expr, err)
	}

	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog, ok := bpf.Disassemble(rawBpf)
	if !ok {
		return nil, fmt.Errorf("failed to disassemble compiled filter %q", expr)
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter %q: %w", expr, err)
	}

	return &Filter{expr: expr, vm: vm}, nil
}

// Match reports whether the raw IP packet matches the filter.
func (f *Filter) Match(data []byte) bool {
	if f.vm == nil {
		return true
	}
	n, err := f.vm.Run(data)
	return err == nil && n > 0
}

// Expression returns the original filter expression.
func (f *Filter) Expression() string { return f.expr }
