//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
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
//
package sim

const (
	ahbMasterArea = 0xfffff000
	ahbSlaveArea  = 0xfffff800
	ahbSlotBytes  = 32
	apbPnPOffset  = 0xff000
	apbSlotBytes  = 8

	vendorGaisler = 0x01
	vendorESA     = 0x04
)

func ident(vendor, device, version, irq uint32) uint32 {
	return vendor<<24 | device<<12 | (version&0x1f)<<5 | irq&0x1f
}

// ahbBAR encodes a memory bank: 12-bit address and mask, prefetchable and
// cacheable bits, type 2.
func ahbBAR(addr, mask uint32, prefetch, cacheable bool) uint32 {
	v := (addr&0xfff)<<20 | (mask&0xfff)<<4 | 2
	if prefetch {
		v |= 1 << 17
	}
	if cacheable {
		v |= 1 << 16
	}
	return v
}

func apbBAR(addr, mask uint32) uint32 {
	return (addr&0xfff)<<20 | (mask&0xfff)<<4 | 1
}

func (s *System) inPlugAndPlay(addr uint32) bool {
	if addr >= ahbMasterArea {
		return true
	}
	apb := s.cfg.APBBase + apbPnPOffset
	return addr >= apb && addr < apb+0x1000
}

func (s *System) buildPlugAndPlay() {
	m := uint32(ahbMasterArea)
	for i := 0; i < len(s.cores); i++ {
		s.rom[m] = ident(vendorGaisler, 0x003, 0, 0)
		m += ahbSlotBytes
	}
	s.rom[m] = ident(vendorGaisler, 0x01c, 1, 0)
	m += ahbSlotBytes
	s.rom[m] = 0

	type slave struct {
		id  uint32
		bar uint32
	}
	slaves := []slave{
		{ident(vendorESA, 0x00f, 1, 0), ahbBAR(s.cfg.RAMBase>>20, 0x1000-s.cfg.RAMSize>>20, true, true)},
		{ident(vendorGaisler, 0x006, 0, 0), ahbBAR(s.cfg.APBBase>>20, 0xfff, false, false)},
		{ident(vendorGaisler, 0x004, 1, 0), ahbBAR(s.cfg.DSUBase>>20, 0xf00, false, false)},
	}
	a := uint32(ahbSlaveArea)
	for _, sl := range slaves {
		s.rom[a] = sl.id
		for i := uint32(1); i < 8; i++ {
			s.rom[a+4*i] = 0
		}
		s.rom[a+16] = sl.bar
		a += ahbSlotBytes
	}
	s.rom[a] = 0

	p := s.cfg.APBBase + apbPnPOffset
	apbs := [][2]uint32{
		{ident(vendorGaisler, 0x00c, 1, 2), apbBAR(0x001, 0xfff)},
		{ident(vendorGaisler, 0x00d, 3, 0), apbBAR(0x002, 0xfff)},
		{ident(vendorGaisler, 0x011, 0, 8), apbBAR(0x003, 0xfff)},
	}
	for _, d := range apbs {
		s.rom[p], s.rom[p+4] = d[0], d[1]
		p += apbSlotBytes
	}
	s.rom[p] = 0
}
