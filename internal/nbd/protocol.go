package nbd

// Wire constants from the Fixed-Newstyle handshake and the
// request/reply transmission loop, as surfaced by the go-nbd/buse
// reference implementations: magic numbers, handshake flag bits, the
// NBD_OPT_EXPORT_NAME option, and the five transmission commands.
const (
	magicNBD     uint64 = 0x4e42444d41474943 // "NBDMAGIC"
	magicIHaveOpt uint64 = 0x49484156454f5054 // "IHAVEOPT"

	handshakeFlagFixedNewstyle uint16 = 1 << 0
	clientFlagFixedNewstyle    uint32 = 1 << 0

	optExportName uint32 = 1

	transmitFlagHasFlags  uint16 = 1 << 0
	transmitFlagReadOnly  uint16 = 1 << 1
	transmitFlagSendFlush uint16 = 1 << 2
	transmitFlagSendTrim  uint16 = 1 << 5

	requestMagic uint32 = 0x25609513
	replyMagic   uint32 = 0x67446698

	cmdRead  uint16 = 0
	cmdWrite uint16 = 1
	cmdDisc  uint16 = 2
	cmdFlush uint16 = 3
	cmdTrim  uint16 = 4
)

// NBD wire error codes are raw POSIX errno values, independent of the
// host platform's numbering, since they cross the wire to whatever
// client is on the other end.
const (
	errnoEINVAL uint32 = 22
	errnoEPERM  uint32 = 1
	errnoEIO    uint32 = 5
)

const reservedZeroLength = 124

type request struct {
	magic  uint32
	flags  uint16
	typus  uint16
	cookie uint64
	offset uint64
	length uint32
}

type reply struct {
	magic  uint32
	errno  uint32
	cookie uint64
}
