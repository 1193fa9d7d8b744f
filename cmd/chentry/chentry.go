// Command chentry rewrites the entry address recorded in an ELF
// executable's header, the way the boot trampoline's build step
// patches the kernel image's entry point after linking.
//
// Carried from Biscuit's kernel/chentry.go: host-side ELF
// surgery has no device-plane equivalent in SPEC_FULL.md, so it moves
// here alongside cmd/mkinitramfs and cmd/advosctl rather than sharing
// a directory with the kernel library package, which chentry predates
// and has nothing to do with.
package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"
)

func usage(me string) {
	fmt.Printf("%s <filename> <addr>\n\nChange the ELF entry point of <filename> to <addr>\n", me)
	os.Exit(1)
}

// chkELF validates the ELF file header to ensure we are modifying the
// correct type of binary. It exits the program if any of the checks
// fail.
func chkELF(eh *elf.FileHeader) {
	if eh.Class != elf.ELFCLASS64 {
		log.Fatal("not a 64 bit elf")
	}
	if eh.Data != elf.ELFDATA2LSB {
		log.Fatal("not little-endian?")
	}
	if eh.Type != elf.ET_EXEC {
		log.Fatal("not an executable elf")
	}
	if eh.Machine != elf.EM_X86_64 {
		log.Fatal("not a 64 bit elf")
	}
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	fn := os.Args[1]
	addr, err := parseAddr(os.Args[2])
	if err != nil {
		log.Fatal(err)
	}
	if addr>>32 != 0 {
		log.Fatal("entry is 64bit pointer; bootloader will perish")
	}
	f, err := os.OpenFile(fn, os.O_RDWR, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		log.Fatal(err)
	}
	chkELF(&ef.FileHeader)

	fmt.Printf("using address 0x%x\n", addr)
	// e_entry is the 8-byte field at offset 24 of an ELF64 header.
	var entry [8]byte
	binary.LittleEndian.PutUint64(entry[:], addr)
	if _, err := f.WriteAt(entry[:], 24); err != nil {
		log.Fatal(err)
	}
}

// parseAddr converts the supplied string into a uint64 address. The
// syntax matches C's strtoul with a base of 0, allowing both decimal
// and hexadecimal numbers.
func parseAddr(s string) (uint64, error) {
	a, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return a, nil
}
