package visca

import "fmt"

// commandKind distinguishes the two opcode categories of the protocol.
type commandKind uint8

const (
	kindNone commandKind = iota
	kindCommand
	kindInquiry
)

// Command is an immutable semantic request: a camera command or an inquiry,
// together with its encoded operand bytes. Commands are built by the
// constructor functions in this file, which validate all operands
// synchronously; a zero-value Command is not encodable.
type Command struct {
	name string
	kind commandKind
	body []byte
}

// Name returns the human-readable name of the command.
func (c Command) Name() string { return c.name }

// IsInquiry reports whether the command is an inquiry.
func (c Command) IsInquiry() bool { return c.kind == kindInquiry }

func newCommand(name string, body ...byte) Command {
	return Command{name: name, kind: kindCommand, body: body}
}

func newInquiry(name string, body ...byte) Command {
	return Command{name: name, kind: kindInquiry, body: body}
}

// Speed limits for pan/tilt drive operands.
const (
	PanSpeedMax  = 0x18
	TiltSpeedMax = 0x14
)

// PanDirection selects the horizontal motion of a pan/tilt drive command.
type PanDirection byte

// TiltDirection selects the vertical motion of a pan/tilt drive command.
type TiltDirection byte

const (
	PanLeft  PanDirection = 0x01
	PanRight PanDirection = 0x02
	PanNone  PanDirection = 0x03

	TiltUp   TiltDirection = 0x01
	TiltDown TiltDirection = 0x02
	TiltNone TiltDirection = 0x03
)

func checkPanSpeed(speed byte, dir PanDirection) error {
	if dir == PanNone {
		return nil
	}
	if speed < 0x01 || speed > PanSpeedMax {
		return fmt.Errorf("%w: pan speed 0x%02X out of range [0x01, 0x%02X]", ErrInvalidParameter, speed, PanSpeedMax)
	}

	return nil
}

func checkTiltSpeed(speed byte, dir TiltDirection) error {
	if dir == TiltNone {
		return nil
	}
	if speed < 0x01 || speed > TiltSpeedMax {
		return fmt.Errorf("%w: tilt speed 0x%02X out of range [0x01, 0x%02X]", ErrInvalidParameter, speed, TiltSpeedMax)
	}

	return nil
}

func checkDirections(pan PanDirection, tilt TiltDirection) error {
	if pan != PanLeft && pan != PanRight && pan != PanNone {
		return fmt.Errorf("%w: pan direction 0x%02X", ErrInvalidParameter, byte(pan))
	}
	if tilt != TiltUp && tilt != TiltDown && tilt != TiltNone {
		return fmt.Errorf("%w: tilt direction 0x%02X", ErrInvalidParameter, byte(tilt))
	}

	return nil
}

// PanTiltDrive starts continuous pan/tilt motion in the given directions at
// the given speeds. Speeds are ignored for a direction of PanNone/TiltNone
// and encoded as zero.
//
// Wire form: 8x 01 06 01 VV WW PP TT FF.
func PanTiltDrive(panSpeed, tiltSpeed byte, pan PanDirection, tilt TiltDirection) (Command, error) {
	if err := checkDirections(pan, tilt); err != nil {
		return Command{}, err
	}
	if err := checkPanSpeed(panSpeed, pan); err != nil {
		return Command{}, err
	}
	if err := checkTiltSpeed(tiltSpeed, tilt); err != nil {
		return Command{}, err
	}

	if pan == PanNone {
		panSpeed = 0
	}
	if tilt == TiltNone {
		tiltSpeed = 0
	}

	return newCommand("pan_tilt_drive", 0x01, 0x06, 0x01, panSpeed, tiltSpeed, byte(pan), byte(tilt)), nil
}

// PanTiltStop stops any pan/tilt motion.
func PanTiltStop() Command {
	return newCommand("pan_tilt_stop", 0x01, 0x06, 0x01, 0x00, 0x00, byte(PanNone), byte(TiltNone))
}

// PanTiltAbsolute moves to an absolute pan/tilt position at the given speeds.
// Positions are signed device units, nibble-packed on the wire.
//
// Wire form: 8x 01 06 02 VV WW 0p 0q 0r 0s 0t 0u 0v 0w FF.
func PanTiltAbsolute(panSpeed, tiltSpeed byte, pan, tilt int16) (Command, error) {
	if err := checkPanSpeed(panSpeed, PanLeft); err != nil {
		return Command{}, err
	}
	if err := checkTiltSpeed(tiltSpeed, TiltUp); err != nil {
		return Command{}, err
	}

	body := append([]byte{0x01, 0x06, 0x02, panSpeed, tiltSpeed}, splitNibbles(uint16(pan))...)
	body = append(body, splitNibbles(uint16(tilt))...)

	return Command{name: "pan_tilt_absolute", kind: kindCommand, body: body}, nil
}

// PanTiltRelative moves by a signed pan/tilt offset at the given speeds.
//
// Wire form: 8x 01 06 03 VV WW 0p 0q 0r 0s 0t 0u 0v 0w FF.
func PanTiltRelative(panSpeed, tiltSpeed byte, pan, tilt int16) (Command, error) {
	if err := checkPanSpeed(panSpeed, PanLeft); err != nil {
		return Command{}, err
	}
	if err := checkTiltSpeed(tiltSpeed, TiltUp); err != nil {
		return Command{}, err
	}

	body := append([]byte{0x01, 0x06, 0x03, panSpeed, tiltSpeed}, splitNibbles(uint16(pan))...)
	body = append(body, splitNibbles(uint16(tilt))...)

	return Command{name: "pan_tilt_relative", kind: kindCommand, body: body}, nil
}

// PanTiltHome returns the head to its home position.
func PanTiltHome() Command {
	return newCommand("pan_tilt_home", 0x01, 0x06, 0x04)
}

// PanTiltReset reinitializes the pan/tilt mechanism.
func PanTiltReset() Command {
	return newCommand("pan_tilt_reset", 0x01, 0x06, 0x05)
}

// ZoomSpeedMax is the highest variable zoom speed.
const ZoomSpeedMax = 7

// ZoomTele starts zooming in at a variable speed 0-7.
func ZoomTele(speed byte) (Command, error) {
	if speed > ZoomSpeedMax {
		return Command{}, fmt.Errorf("%w: zoom speed %d out of range [0, %d]", ErrInvalidParameter, speed, ZoomSpeedMax)
	}

	return newCommand("zoom_tele", 0x01, 0x04, 0x07, 0x20|speed), nil
}

// ZoomWide starts zooming out at a variable speed 0-7.
func ZoomWide(speed byte) (Command, error) {
	if speed > ZoomSpeedMax {
		return Command{}, fmt.Errorf("%w: zoom speed %d out of range [0, %d]", ErrInvalidParameter, speed, ZoomSpeedMax)
	}

	return newCommand("zoom_wide", 0x01, 0x04, 0x07, 0x30|speed), nil
}

// ZoomStop stops the zoom motion.
func ZoomStop() Command {
	return newCommand("zoom_stop", 0x01, 0x04, 0x07, 0x00)
}

// PositionMax is the highest direct zoom/focus position.
const PositionMax = 0x4000

// ZoomDirect moves the zoom to an absolute position 0x0000 (wide) to
// 0x4000 (tele).
//
// Wire form: 8x 01 04 47 0p 0q 0r 0s FF.
func ZoomDirect(pos uint16) (Command, error) {
	if pos > PositionMax {
		return Command{}, fmt.Errorf("%w: zoom position 0x%04X out of range [0, 0x%04X]", ErrInvalidParameter, pos, PositionMax)
	}

	body := append([]byte{0x01, 0x04, 0x47}, splitNibbles(pos)...)

	return Command{name: "zoom_direct", kind: kindCommand, body: body}, nil
}

// FocusFar starts moving the focus toward far.
func FocusFar() Command {
	return newCommand("focus_far", 0x01, 0x04, 0x08, 0x02)
}

// FocusNear starts moving the focus toward near.
func FocusNear() Command {
	return newCommand("focus_near", 0x01, 0x04, 0x08, 0x03)
}

// FocusStop stops the focus motion.
func FocusStop() Command {
	return newCommand("focus_stop", 0x01, 0x04, 0x08, 0x00)
}

// FocusDirect moves the focus to an absolute position 0x0000-0x4000.
func FocusDirect(pos uint16) (Command, error) {
	if pos > PositionMax {
		return Command{}, fmt.Errorf("%w: focus position 0x%04X out of range [0, 0x%04X]", ErrInvalidParameter, pos, PositionMax)
	}

	body := append([]byte{0x01, 0x04, 0x48}, splitNibbles(pos)...)

	return Command{name: "focus_direct", kind: kindCommand, body: body}, nil
}

// FocusAuto switches between auto focus (true) and manual focus (false).
func FocusAuto(enabled bool) Command {
	mode := byte(0x03)
	if enabled {
		mode = 0x02
	}

	return newCommand("focus_auto", 0x01, 0x04, 0x38, mode)
}

// FocusOnePush triggers a one-push auto focus cycle.
func FocusOnePush() Command {
	return newCommand("focus_one_push", 0x01, 0x04, 0x18, 0x01)
}

// Power switches the camera on (true) or to standby (false).
func Power(on bool) Command {
	mode := byte(0x03)
	if on {
		mode = 0x02
	}

	return newCommand("power", 0x01, 0x04, 0x00, mode)
}

// WhiteBalanceMode enumerates the white balance settings of the common
// command family.
type WhiteBalanceMode byte

const (
	WBAuto        WhiteBalanceMode = 0x00
	WBIndoor      WhiteBalanceMode = 0x01
	WBOutdoor     WhiteBalanceMode = 0x02
	WBOnePush     WhiteBalanceMode = 0x03
	WBManual      WhiteBalanceMode = 0x05
	WBOutdoorAuto WhiteBalanceMode = 0x06
	WBSodiumLamp  WhiteBalanceMode = 0x07
	WBSodiumAuto  WhiteBalanceMode = 0x08
)

// WhiteBalance selects a white balance mode.
func WhiteBalance(mode WhiteBalanceMode) (Command, error) {
	switch mode {
	case WBAuto, WBIndoor, WBOutdoor, WBOnePush, WBManual, WBOutdoorAuto, WBSodiumLamp, WBSodiumAuto:
	default:
		return Command{}, fmt.Errorf("%w: white balance mode 0x%02X", ErrInvalidParameter, byte(mode))
	}

	return newCommand("white_balance", 0x01, 0x04, 0x35, byte(mode)), nil
}

// PresetMax is the highest memory preset number.
const PresetMax = 0x0F

func checkPreset(preset byte) error {
	if preset > PresetMax {
		return fmt.Errorf("%w: preset %d out of range [0, %d]", ErrInvalidParameter, preset, PresetMax)
	}

	return nil
}

// MemorySet stores the current position in a memory preset 0-15.
func MemorySet(preset byte) (Command, error) {
	if err := checkPreset(preset); err != nil {
		return Command{}, err
	}

	return newCommand("memory_set", 0x01, 0x04, 0x3F, 0x01, preset), nil
}

// MemoryRecall moves to a stored memory preset 0-15.
func MemoryRecall(preset byte) (Command, error) {
	if err := checkPreset(preset); err != nil {
		return Command{}, err
	}

	return newCommand("memory_recall", 0x01, 0x04, 0x3F, 0x02, preset), nil
}

// MemoryReset clears a memory preset 0-15.
func MemoryReset(preset byte) (Command, error) {
	if err := checkPreset(preset); err != nil {
		return Command{}, err
	}

	return newCommand("memory_reset", 0x01, 0x04, 0x3F, 0x00, preset), nil
}

// AddressSet is the broadcast address-set command used at daisy-chain
// bring-up; each device on the bus claims the next free address.
func AddressSet() Command {
	return newCommand("address_set", 0x30, 0x01)
}

// IFClear clears the command buffers of every device on the bus when sent
// to the broadcast address, or of a single device when unicast.
func IFClear() Command {
	return newCommand("if_clear", 0x01, 0x00, 0x01)
}

// InquirePower asks for the power state. The completion payload parses with
// ParsePowerState.
func InquirePower() Command {
	return newInquiry("inquire_power", 0x09, 0x04, 0x00)
}

// InquireZoomPos asks for the absolute zoom position. The completion payload
// parses with ParsePosition.
func InquireZoomPos() Command {
	return newInquiry("inquire_zoom_pos", 0x09, 0x04, 0x47)
}

// InquireFocusPos asks for the absolute focus position. The completion
// payload parses with ParsePosition.
func InquireFocusPos() Command {
	return newInquiry("inquire_focus_pos", 0x09, 0x04, 0x48)
}

// InquirePanTiltPos asks for the absolute pan/tilt position. The completion
// payload parses with ParsePanTiltPosition.
func InquirePanTiltPos() Command {
	return newInquiry("inquire_pan_tilt_pos", 0x09, 0x06, 0x12)
}

// InquireWhiteBalance asks for the current white balance mode.
func InquireWhiteBalance() Command {
	return newInquiry("inquire_white_balance", 0x09, 0x04, 0x35)
}

// splitNibbles packs a 16-bit value into four bytes carrying one nibble
// each, most significant first.
func splitNibbles(v uint16) []byte {
	return []byte{
		byte(v>>12) & 0x0F,
		byte(v>>8) & 0x0F,
		byte(v>>4) & 0x0F,
		byte(v) & 0x0F,
	}
}

// glueNibbles reassembles four nibble-carrying bytes into a 16-bit value.
func glueNibbles(b []byte) uint16 {
	return uint16(b[0]&0x0F)<<12 | uint16(b[1]&0x0F)<<8 | uint16(b[2]&0x0F)<<4 | uint16(b[3]&0x0F)
}

// ParsePowerState interprets the completion payload of InquirePower.
func ParsePowerState(payload []byte) (bool, error) {
	if len(payload) != 1 {
		return false, fmt.Errorf("%w: power state payload length %d", ErrMalformedPacket, len(payload))
	}

	switch payload[0] {
	case 0x02:
		return true, nil
	case 0x03, 0x04:
		return false, nil
	default:
		return false, fmt.Errorf("%w: power state byte 0x%02X", ErrMalformedPacket, payload[0])
	}
}

// ParsePosition interprets a four-nibble completion payload, as returned by
// InquireZoomPos and InquireFocusPos.
func ParsePosition(payload []byte) (uint16, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: position payload length %d", ErrMalformedPacket, len(payload))
	}
	for _, b := range payload {
		if b&0xF0 != 0 {
			return 0, fmt.Errorf("%w: position byte 0x%02X has high nibble set", ErrMalformedPacket, b)
		}
	}

	return glueNibbles(payload), nil
}

// ParsePanTiltPosition interprets the eight-nibble completion payload of
// InquirePanTiltPos as signed pan and tilt positions.
func ParsePanTiltPosition(payload []byte) (pan, tilt int16, err error) {
	if len(payload) != 8 {
		return 0, 0, fmt.Errorf("%w: pan/tilt payload length %d", ErrMalformedPacket, len(payload))
	}
	for _, b := range payload {
		if b&0xF0 != 0 {
			return 0, 0, fmt.Errorf("%w: pan/tilt byte 0x%02X has high nibble set", ErrMalformedPacket, b)
		}
	}

	return int16(glueNibbles(payload[:4])), int16(glueNibbles(payload[4:])), nil
}
