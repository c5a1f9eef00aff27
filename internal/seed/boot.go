package seed

import "fmt"

const (
	KernelArtifact = "seed.vmlinuz"
	InitrdArtifact = "seed.cpio.zst"

	// InitEnvPath is where the init response lands inside the Seed's initrd.
	InitEnvPath = "/etc/default/barley-seed"
)

// BootDescriptor returns the iPXE script booting the named Seed. The second
// initrd is fetched from the init endpoint and carries the Seed's OTP.
func BootDescriptor(name string) string {
	return fmt.Sprintf(`#!ipxe
kernel %s rdinit=/lib/systemd/systemd systemd.hostname=%s console=ttyS0
initrd %s
initrd init/%s %s
boot
`, KernelArtifact, name, InitrdArtifact, name, InitEnvPath)
}
