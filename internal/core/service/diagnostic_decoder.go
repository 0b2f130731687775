package service

import (
	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"
)

// DecodeDiagnostics reports every condition of the table. Bits without an
// entry are ignored and a nil word decodes to all false.
func DecodeDiagnostics(word *uint32, table []deye_modbus.DiagnosticBit) domain.DiagnosticFlags {
	flags := make(domain.DiagnosticFlags, len(table))
	for _, bit := range table {
		flags[bit.Id] = word != nil && *word&bit.Mask != 0
	}
	return flags
}
