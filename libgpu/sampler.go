package libgpu

import "fmt"

type Sampler struct {
	hw   HwSampler
	desc SamplerDesc
}

func NewSampler(dev Device, desc SamplerDesc) (*Sampler, error) {
	if desc.MaxLod < desc.MinLod {
		return nil, fmt.Errorf("sampler lod range [%v, %v]: %w", desc.MinLod, desc.MaxLod, ErrInvalid)
	}
	hw, err := dev.NewSampler(&desc)
	if err != nil {
		return nil, allocationError(fmt.Sprintf("create sampler %q", desc.Label), err)
	}
	return &Sampler{hw: hw, desc: desc}, nil
}

func (s *Sampler) Hw() HwSampler {
	return s.hw
}

func (s *Sampler) Desc() SamplerDesc {
	return s.desc
}

func (s *Sampler) Destroy() {
	if s.hw != nil {
		s.hw.Destroy()
		s.hw = nil
	}
}
