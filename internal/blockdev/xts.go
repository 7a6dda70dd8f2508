package blockdev

import (
	"crypto/aes"
	"errors"
	"fmt"

	"golang.org/x/crypto/xts"
)

// XTS encrypts every block of an underlying device with AES-XTS. The block
// index is the tweak, so identical plaintext blocks never look alike.
type XTS struct {
	dev    Device
	cipher *xts.Cipher
	buf    []byte
}

// NewXTS wraps dev. key holds two AES keys: 32 bytes for AES-128 or 64
// bytes for AES-256.
func NewXTS(dev Device, key []byte) (*XTS, error) {
	if len(key) != 32 && len(key) != 64 {
		return nil, errors.New("blockdev: AES-XTS key must be 32 or 64 bytes")
	}
	c, err := xts.NewCipher(aes.NewCipher, key)
	if err != nil {
		return nil, fmt.Errorf("blockdev: %w", err)
	}
	return &XTS{
		dev:    dev,
		cipher: c,
		buf:    make([]byte, dev.BlockSize()),
	}, nil
}

func (x *XTS) BlockSize() int { return x.dev.BlockSize() }

func (x *XTS) Size() int64 { return x.dev.Size() }

func (x *XTS) ReadBlock(index int64, p []byte) error {
	if err := checkAccess(x, index, p); err != nil {
		return err
	}
	if err := x.dev.ReadBlock(index, x.buf); err != nil {
		return err
	}
	x.cipher.Decrypt(p[:len(x.buf)], x.buf, uint64(index))
	return nil
}

func (x *XTS) WriteBlock(index int64, p []byte) error {
	if err := checkAccess(x, index, p); err != nil {
		return err
	}
	x.cipher.Encrypt(x.buf, p[:len(x.buf)], uint64(index))
	return x.dev.WriteBlock(index, x.buf)
}
