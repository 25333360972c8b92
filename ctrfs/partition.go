package ctrfs

import (
	"fmt"
	"strings"

	"github.com/giwty/ndecrypt/rom"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type partitionKeys struct {
	primary      [16]byte
	secondary    [16]byte
	secondaryErr error
}

// deriveKeys computes the 0x2C key and the key of the partition crypto method.
// A secondary key that cannot be derived only fails the regions that need it.
func deriveKeys(keys KeyProvider, ncch *NCCHHeader, flags Flags, development bool) (partitionKeys, error) {
	var pk partitionKeys
	if flags.FixedCryptoKey() {
		return pk, nil
	}

	keyY := ncch.KeyY()
	primary, err := DeriveKey(keys, Keyslot0x2C, keyY, development)
	if err != nil {
		return pk, err
	}
	pk.primary = primary

	if flags.SeedCrypto() {
		pk.secondaryErr = ErrSeedCryptoUnsupported
		return pk, nil
	}
	slot, err := KeyslotForMethod(flags.CryptoMethod())
	if err != nil {
		pk.secondaryErr = err
		return pk, nil
	}
	pk.secondary, pk.secondaryErr = DeriveKey(keys, slot, keyY, development)
	return pk, nil
}

// TransformPartition encrypts or decrypts the NCCH at offset in place. backup holds the
// original flags used to re-encrypt. Regions are processed independently; the header flags
// are only rewritten when every region succeeded.
func TransformPartition(rw rom.ReadWriterAt, offset int64, keys KeyProvider, backup Flags, mode rom.Mode, development bool) (rom.Outcome, error) {
	ncch, err := ReadNCCH(rw, offset)
	if err != nil {
		return rom.Unknown, err
	}

	if ncch.Flags.NoCrypto() == (mode == rom.Decrypt) {
		zap.S().Infof("NCCH %v at 0x%X is already %v", ncch.ProductCode, offset, mode.Done())
		return rom.AlreadyDone, nil
	}

	crypto := ncch.Flags
	newFlags := ncch.Flags.decrypted()
	if mode == rom.Encrypt {
		crypto = ncch.Flags.encrypted(backup)
		newFlags = crypto
		if crypto.NoCrypto() {
			zap.S().Infof("NCCH %v at 0x%X has no encryption to restore", ncch.ProductCode, offset)
			return rom.AlreadyDone, nil
		}
	}

	pk, err := deriveKeys(keys, ncch, crypto, development)
	if err != nil {
		return rom.Unknown, err
	}

	var errs error
	var done []string
	region := func(name string, err error) {
		if err != nil {
			errs = multierr.Append(errs, err)
			return
		}
		done = append(done, name)
	}

	if ncch.ExHeaderSize > 0 {
		region(TagPlain.String(), TransformRegion(rw, Region{
			Name:    TagPlain.String(),
			Offset:  offset + exHeaderOffset,
			Size:    exHeaderRegionSize,
			Key:     pk.primary,
			Counter: ncch.Counter(TagPlain),
		}))
	}
	if ncch.ExeFSSize > 0 {
		region(TagExeFS.String(), transformExeFS(rw, offset, ncch, pk, mode))
	}
	if ncch.RomFSSize > 0 {
		if pk.secondaryErr != nil {
			region(TagRomFS.String(), fmt.Errorf("%v: %w", TagRomFS, pk.secondaryErr))
		} else {
			region(TagRomFS.String(), TransformRegion(rw, Region{
				Name:    TagRomFS.String(),
				Offset:  offset + ncch.RomFSOffset,
				Size:    ncch.RomFSSize,
				Key:     pk.secondary,
				Counter: ncch.Counter(TagRomFS),
			}))
		}
	}
	if errs != nil {
		if len(done) > 0 {
			// the flags still say the old state, so another run flips these regions back
			zap.S().Warnf("NCCH %v at 0x%X: %v already %v but flags left unchanged, do not run %v again on this image",
				ncch.ProductCode, offset, strings.Join(done, ", "), mode.Done(), mode)
		}
		return rom.Unknown, errs
	}

	if _, err := rw.WriteAt(newFlags[:], offset+ncchFlagsOffset); err != nil {
		return rom.Unknown, fmt.Errorf("failed to update NCCH flags: %w", err)
	}
	zap.S().Infof("NCCH %v at 0x%X %v (crypto method 0x%02X)", ncch.ProductCode, offset, mode.Done(), crypto.CryptoMethod())
	return rom.Transformed, nil
}

func transformExeFS(rw rom.ReadWriterAt, offset int64, ncch *NCCHHeader, pk partitionKeys, mode rom.Mode) error {
	exefs := Region{
		Name:    TagExeFS.String(),
		Offset:  offset + ncch.ExeFSOffset,
		Size:    ncch.ExeFSSize,
		Key:     pk.primary,
		Counter: ncch.Counter(TagExeFS),
	}

	header := make([]byte, exefsHeaderSize)
	if err := rom.ReadFull(rw, header, exefs.Offset); err != nil {
		return fmt.Errorf("%v: failed to read header: %w", exefs.Name, err)
	}
	if mode == rom.Decrypt {
		if err := transformBytes(exefs, header); err != nil {
			return fmt.Errorf("%v: %w", exefs.Name, err)
		}
	}

	segments := exefsSegments(ParseExeFSHeader(header), exefs.Size)
	if needsSecondaryKey(segments) && pk.secondaryErr != nil {
		return fmt.Errorf("%v: %w", exefs.Name, pk.secondaryErr)
	}

	for _, s := range segments {
		key := pk.primary
		if s.secondary {
			key = pk.secondary
		}
		zap.S().Debugf("%v [0x%X, 0x%X) secondary=%v", s.name, s.start, s.end, s.secondary)
		if err := TransformRegion(rw, exefs.SubRegion(s.name, key, s.start, s.end-s.start)); err != nil {
			return err
		}
	}
	return nil
}

// TransformImage encrypts or decrypts every partition of an NCSD image in place.
// The outcome is AlreadyDone only when no partition needed work.
func TransformImage(rw rom.ReadWriterAt, keys KeyProvider, mode rom.Mode, development bool) (rom.Outcome, error) {
	ncsd, err := ReadNCSD(rw)
	if err != nil {
		return rom.Unknown, err
	}

	outcome := rom.AlreadyDone
	var errs error
	zap.S().Debugf("NCSD media id %016X, %d partition(s)", ncsd.MediaID, len(ncsd.Partitions))
	for _, p := range ncsd.Partitions {
		zap.S().Debugf("partition %d at 0x%X size 0x%X (fs type %d, crypt type %d)", p.Index, p.Offset, p.Size, p.FSType, p.Crypt)
		out, err := TransformPartition(rw, p.Offset, keys, ncsd.BackupFlags, mode, development)
		if err != nil {
			zap.S().Warnf("partition %d: %v", p.Index, err)
			errs = multierr.Append(errs, fmt.Errorf("partition %d: %w", p.Index, err))
			continue
		}
		if out == rom.Transformed {
			outcome = rom.Transformed
		}
	}
	if errs != nil {
		return rom.Unknown, errs
	}
	return outcome, nil
}
