package storage

import (
	"ekv/internal/common"
	"ekv/types"
)

// HashSlot maps a key onto [0, types.SlotMax).
func HashSlot(key string) int32 {
	return int32(common.Crc16String(key)) % types.SlotMax
}
