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
package plugnplay

import "fmt"

const (
	VendorGaisler = 0x01
	VendorESA     = 0x04
)

const (
	DeviceLEON2DSU = 0x002
	DeviceLEON3    = 0x003
	DeviceLEON3DSU = 0x004
	DeviceETHAHB   = 0x005
	DeviceAPBMST   = 0x006
	DeviceAHBUART  = 0x007
	DeviceSRCTRL   = 0x008
	DeviceSDCTRL   = 0x009
	DeviceAPBUART  = 0x00c
	DeviceIRQMP    = 0x00d
	DeviceAHBRAM   = 0x00e
	DeviceGPTIMER  = 0x011
	DeviceGPIO     = 0x01a
	DeviceAHBJTAG  = 0x01c
	DeviceETHMAC   = 0x01d
	DeviceAHBSTAT  = 0x052
	DeviceLEON3FT  = 0x053
	DeviceFTMCTRL  = 0x054

	DeviceESALEON2 = 0x002
	DeviceESAMCTRL = 0x00f
)

var vendorNames = map[uint8]string{
	VendorGaisler: "GAISLER",
	VendorESA:     "ESA",
}

var deviceNames = map[uint8]map[uint16]string{
	VendorGaisler: {
		DeviceLEON2DSU: "LEON2DSU",
		DeviceLEON3:    "LEON3",
		DeviceLEON3DSU: "LEON3DSU",
		DeviceETHAHB:   "ETHAHB",
		DeviceAPBMST:   "APBMST",
		DeviceAHBUART:  "AHBUART",
		DeviceSRCTRL:   "SRCTRL",
		DeviceSDCTRL:   "SDCTRL",
		DeviceAPBUART:  "APBUART",
		DeviceIRQMP:    "IRQMP",
		DeviceAHBRAM:   "AHBRAM",
		DeviceGPTIMER:  "GPTIMER",
		DeviceGPIO:     "GPIO",
		DeviceAHBJTAG:  "AHBJTAG",
		DeviceETHMAC:   "ETHMAC",
		DeviceAHBSTAT:  "AHBSTAT",
		DeviceLEON3FT:  "LEON3FT",
		DeviceFTMCTRL:  "FTMCTRL",
	},
	VendorESA: {
		DeviceESALEON2: "LEON2",
		DeviceESAMCTRL: "MCTRL",
	},
}

func VendorName(vendor uint8) string {
	if n, ok := vendorNames[vendor]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", vendor)
}

func DeviceName(vendor uint8, device uint16) string {
	if n, ok := deviceNames[vendor][device]; ok {
		return n
	}
	return fmt.Sprintf("0x%03x", device)
}
