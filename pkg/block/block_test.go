package block

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Klingon-tech/vite-agent/pkg/crypto"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// A confirmed send block as returned by ledger_getAccountBlocksByAddress.
const mainnetSendBlock = `{
	"blockType": 2,
	"height": "632",
	"hash": "b405ac3f46485864ac1302db21c84c6506c7c0d4c038612665f663c22ec6c11b",
	"previousHash": "3072b1e4f2115c352cd94c84f1d109c3b9df42a3a34c28585d76c8eb8515e885",
	"address": "vite_15d3230e3c31c009c968beea7160ae98b491475236ae2cddbc",
	"publicKey": "LgiZIygJ/JgXEixF851nz7CKFResl1QiLtq8bs7g+Qw=",
	"fromAddress": "vite_15d3230e3c31c009c968beea7160ae98b491475236ae2cddbc",
	"toAddress": "vite_0000000000000000000000000000000000000006e82b8ba657",
	"sendBlockHash": "0000000000000000000000000000000000000000000000000000000000000000",
	"tokenId": "tti_f370fadb275bc2a1a839c753",
	"amount": "100000000",
	"fee": "0",
	"data": "MZ5G3Q==",
	"difficulty": null,
	"nonce": null,
	"signature": "0Ceo+kfY9GUzRJXdIw4SfwM2LLrwqaLNcvDvPYulmLLkQ/EWjLJtZJqj1f0XJjQ+dVqz4kDy1vksH+0a+FGuBQ==",
	"timestamp": 1638380245,
	"confirmations": "5291"
}`

func decodeFixture(t *testing.T) *AccountBlock {
	t.Helper()
	var b AccountBlock
	if err := json.Unmarshal([]byte(mainnetSendBlock), &b); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	return &b
}

// testSigner returns the key for m/44'/666666'/0' of the "abandon ... about" mnemonic.
func testSigner(t *testing.T) (*crypto.PrivateKey, types.Address) {
	t.Helper()
	seed, _ := hex.DecodeString("27c757fbbecdbc8df062c34df00b4c72e0a6d7bb9a68f2ab18186a2de1454d8e")
	pk, err := crypto.NewKeyFromSeed(seed)
	if err != nil {
		t.Fatalf("NewKeyFromSeed() error: %v", err)
	}
	return pk, types.AddressFromPublicKey(pk.PublicKey())
}

func TestUnmarshal_NodeBlock(t *testing.T) {
	b := decodeFixture(t)

	if b.BlockType != Send {
		t.Errorf("BlockType = %v, want send", b.BlockType)
	}
	if b.Height != 632 {
		t.Errorf("Height = %d, want 632", b.Height)
	}
	if b.Amount.String() != "100000000" {
		t.Errorf("Amount = %s, want 100000000", b.Amount)
	}
	if !b.ToAddress.IsContract() {
		t.Error("ToAddress should be a contract address")
	}
	if b.Confirmations != 5291 {
		t.Errorf("Confirmations = %d, want 5291", b.Confirmations)
	}
	if b.Difficulty != "" || b.Nonce != nil {
		t.Errorf("PoW fields should be empty, got %q / %x", b.Difficulty, b.Nonce)
	}
}

func TestComputeHash_NodeBlock(t *testing.T) {
	b := decodeFixture(t)
	if got := b.ComputeHash(); got != b.Hash {
		t.Errorf("ComputeHash() = %s, want %s", got, b.Hash)
	}
}

func TestVerifySignature_NodeBlock(t *testing.T) {
	b := decodeFixture(t)
	if err := b.VerifySignature(); err != nil {
		t.Fatalf("VerifySignature() error: %v", err)
	}

	b.Amount = types.MustParseAmount("100000001")
	if err := b.VerifySignature(); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("tampered amount: err = %v, want ErrHashMismatch", err)
	}
}

func TestSigningBytes_Nonce(t *testing.T) {
	b := decodeFixture(t)
	without := b.ComputeHash()

	b.Nonce = make([]byte, NonceSize)
	if b.ComputeHash() != without {
		t.Error("absent nonce must hash like an all-zero nonce")
	}

	b.Nonce = []byte{0, 0, 0, 0, 0, 0, 0, 1}
	if b.ComputeHash() == without {
		t.Error("nonce must change the hash")
	}
}

func TestSigningBytes_ReceiveUsesSendHash(t *testing.T) {
	b := &AccountBlock{
		BlockType: Receive,
		Height:    1,
		TokenID:   types.ViteTokenID,
		Amount:    types.NewAmount(5),
	}
	b.SendBlockHash[0] = 1
	h1 := b.ComputeHash()

	// Send-only fields do not contribute to a receive block's hash.
	b.Amount = types.NewAmount(6)
	if b.ComputeHash() != h1 {
		t.Error("amount changed receive block hash")
	}

	b.SendBlockHash[0] = 2
	if b.ComputeHash() == h1 {
		t.Error("send block hash did not change receive block hash")
	}
}

func TestSign(t *testing.T) {
	key, addr := testSigner(t)
	to := types.MustParseAddress("vite_328b70af67e20abd39e5fd3ae826a32670e5497754f2a8ed22")

	b := &AccountBlock{
		BlockType: Send,
		Height:    1,
		Address:   addr,
		ToAddress: to,
		TokenID:   types.ViteTokenID,
		Amount:    types.MustParseAmount("100000000"),
	}
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !b.IsSigned() {
		t.Fatal("IsSigned() = false after Sign")
	}
	if b.Hash != b.ComputeHash() {
		t.Error("Hash not set to ComputeHash()")
	}
	if err := b.VerifySignature(); err != nil {
		t.Errorf("VerifySignature() error: %v", err)
	}

	first := b.Signature
	if err := b.Sign(key); !errors.Is(err, ErrAlreadySigned) {
		t.Errorf("second Sign() err = %v, want ErrAlreadySigned", err)
	}
	if string(b.Signature) != string(first) {
		t.Error("signature changed by rejected re-sign")
	}
}

func TestSign_WrongKey(t *testing.T) {
	key, _ := testSigner(t)
	b := &AccountBlock{
		BlockType: Send,
		Height:    1,
		Address:   types.MustParseAddress("vite_328b70af67e20abd39e5fd3ae826a32670e5497754f2a8ed22"),
	}
	if err := b.Sign(key); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("Sign() err = %v, want ErrKeyMismatch", err)
	}
	if b.IsSigned() {
		t.Error("block signed despite key mismatch")
	}
}

func TestMarshalJSON_Send(t *testing.T) {
	key, addr := testSigner(t)
	b := &AccountBlock{
		BlockType:  Send,
		Height:     7,
		Address:    addr,
		ToAddress:  types.MustParseAddress("vite_5a10494b3f4893d166f9087d7be819fa4f3f1cbb427aedb671"),
		TokenID:    types.ViteTokenID,
		Amount:     types.MustParseAmount("100000000"),
		Difficulty: "67108863",
		Nonce:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	b.PreviousHash[31] = 9
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"amount":"100000000"`, `"height":"7"`, `"difficulty":"67108863"`, `"blockType":2`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded block missing %s: %s", want, s)
		}
	}
	if strings.Contains(s, "sendBlockHash") {
		t.Errorf("send block should not carry sendBlockHash: %s", s)
	}

	var back AccountBlock
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if err := back.VerifySignature(); err != nil {
		t.Errorf("decoded block fails verification: %v", err)
	}
}

func TestMarshalJSON_Receive(t *testing.T) {
	b := &AccountBlock{BlockType: Receive, Height: 1}
	b.SendBlockHash[0] = 0xab
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "toAddress") || strings.Contains(s, `"amount"`) {
		t.Errorf("receive block should not carry send fields: %s", s)
	}
	if !strings.Contains(s, `"sendBlockHash":"ab00`) {
		t.Errorf("receive block missing sendBlockHash: %s", s)
	}
	if !strings.Contains(s, `"difficulty":null`) {
		t.Errorf("absent difficulty should encode as null: %s", s)
	}
}

func TestClone(t *testing.T) {
	b := decodeFixture(t)
	c := b.Clone()
	c.Signature[0] ^= 0xff
	c.Data[0] ^= 0xff
	if err := b.VerifySignature(); err != nil {
		t.Errorf("mutating clone affected original: %v", err)
	}
}
