package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

// Kind 标识符类别
type Kind string

const (
	KindAndroidID Kind = "android_id"
	KindSerial    Kind = "serial"
	KindIMEI      Kind = "imei"
	KindIMSI      Kind = "imsi"
)

// AllKinds 返回全部标识符类别, 创建分组时按此列表逐一生成
func AllKinds() []Kind {
	return []Kind{KindAndroidID, KindSerial, KindIMEI, KindIMSI}
}

// IsValidKind 判断是否为已知标识符类别
func IsValidKind(kind Kind) bool {
	switch kind {
	case KindAndroidID, KindSerial, KindIMEI, KindIMSI:
		return true
	}
	return false
}

// GenerationInputError 生成器输入错误
// 生成器对任意厂商名都不应失败, 该错误只作为随机源失效和未知类别的防御性守卫
type GenerationInputError struct {
	Reason string
}

func (e *GenerationInputError) Error() string {
	return fmt.Sprintf("generation input error: %s", e.Reason)
}

const (
	digitChars    = "0123456789"
	upperChars    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	hexUpperChars = "0123456789ABCDEF"
	alnumChars    = upperChars + digitChars
)

// randIndex 从 [0, n) 取密码学安全的均匀随机数
// 标识符可预测会使伪造失去意义, 所以这里只接受密码学强度的随机源
func randIndex(r io.Reader, n int) (int, error) {
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		return 0, &GenerationInputError{Reason: fmt.Sprintf("random source failed: %v", err)}
	}
	return int(v.Int64()), nil
}

// randString 按字符集生成指定长度的随机串
func randString(r io.Reader, charset string, length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		idx, err := randIndex(r, len(charset))
		if err != nil {
			return "", err
		}
		b[i] = charset[idx]
	}
	return string(b), nil
}

// GenerateAndroidID 生成 Android ID
// 取8个随机字节渲染为16位小写十六进制, 满足 ^[0-9a-f]{16}$
func GenerateAndroidID(r io.Reader) (string, error) {
	if r == nil {
		return "", &GenerationInputError{Reason: "nil random source"}
	}
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", &GenerationInputError{Reason: fmt.Sprintf("random source failed: %v", err)}
	}
	return hex.EncodeToString(buf), nil
}

// GenerateSerial 按厂商格式模板生成序列号
// 未知厂商(包括空串)落到通用模板, 不报错
func GenerateSerial(manufacturer string, r io.Reader) (string, error) {
	if r == nil {
		return "", &GenerationInputError{Reason: "nil random source"}
	}

	switch ProfileFor(manufacturer) {
	case ProfileSamsung:
		// R + 2位数字 + 1位字母(年份码) + 8位数字, 共12位
		part1, err := randString(r, digitChars, 2)
		if err != nil {
			return "", err
		}
		year, err := randString(r, upperChars, 1)
		if err != nil {
			return "", err
		}
		part2, err := randString(r, digitChars, 8)
		if err != nil {
			return "", err
		}
		return "R" + part1 + year + part2, nil

	case ProfileHuawei:
		return randString(r, hexUpperChars, 16)

	case ProfileXiaomi:
		// 12-16位, 长度均匀随机
		extra, err := randIndex(r, 5)
		if err != nil {
			return "", err
		}
		return randString(r, alnumChars, 12+extra)

	default:
		// 通用模板: 10-14位大写字母数字
		extra, err := randIndex(r, 5)
		if err != nil {
			return "", err
		}
		return randString(r, alnumChars, 10+extra)
	}
}

// GenerateIMEI 生成15位 IMEI
// 前14位 = 厂商 TAC 前缀 + 随机序列号, 末位为 Luhn 校验位, 整串必然通过 ValidateLuhn
func GenerateIMEI(manufacturer string, r io.Reader) (string, error) {
	if r == nil {
		return "", &GenerationInputError{Reason: "nil random source"}
	}

	tac, ok := tacTable[ProfileFor(manufacturer)]
	if !ok {
		// 通用档: 上报机构码 35 + 6位随机, 凑满8位 TAC
		random, err := randString(r, digitChars, 6)
		if err != nil {
			return "", err
		}
		tac = "35" + random
	}

	snr, err := randString(r, digitChars, 14-len(tac))
	if err != nil {
		return "", err
	}

	payload := tac + snr
	return fmt.Sprintf("%s%d", payload, LuhnCheckDigit(payload)), nil
}

// GenerateIMSI 生成15位 IMSI
// MCC+MNC 从候选表随机选取, MSIN 随机补齐
func GenerateIMSI(manufacturer string, r io.Reader) (string, error) {
	if r == nil {
		return "", &GenerationInputError{Reason: "nil random source"}
	}

	idx, err := randIndex(r, len(plmnTable))
	if err != nil {
		return "", err
	}
	plmn := plmnTable[idx]

	msin, err := randString(r, digitChars, 15-len(plmn))
	if err != nil {
		return "", err
	}
	return plmn + msin, nil
}

// Generate 按标识符类别分发到对应生成器
func Generate(kind Kind, manufacturer string, r io.Reader) (string, error) {
	switch kind {
	case KindAndroidID:
		return GenerateAndroidID(r)
	case KindSerial:
		return GenerateSerial(manufacturer, r)
	case KindIMEI:
		return GenerateIMEI(manufacturer, r)
	case KindIMSI:
		return GenerateIMSI(manufacturer, r)
	default:
		return "", &GenerationInputError{Reason: fmt.Sprintf("unknown identifier kind: %s", kind)}
	}
}

// GenerateAll 为指定厂商一次性生成全部标识符, 创建分组时调用一次
func GenerateAll(manufacturer string, r io.Reader) (map[Kind]string, error) {
	if r == nil {
		r = rand.Reader
	}

	values := make(map[Kind]string, len(AllKinds()))
	for _, kind := range AllKinds() {
		value, err := Generate(kind, manufacturer, r)
		if err != nil {
			return nil, err
		}
		values[kind] = value
	}
	return values, nil
}

// Validate 校验已生成的值是否满足其类别的格式规则
// 用于分组加载后的自检, 对任意输入都不会 panic
func Validate(kind Kind, manufacturer string, value string) bool {
	switch kind {
	case KindAndroidID:
		if len(value) != 16 {
			return false
		}
		for i := 0; i < len(value); i++ {
			c := value[i]
			if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
				return false
			}
		}
		return true

	case KindSerial:
		return validateSerial(ProfileFor(manufacturer), value)

	case KindIMEI:
		return len(value) == 15 && ValidateLuhn(value)

	case KindIMSI:
		if len(value) != 15 {
			return false
		}
		return allDigits(value)
	}
	return false
}

func validateSerial(profile Profile, value string) bool {
	switch profile {
	case ProfileSamsung:
		if len(value) != 12 || value[0] != 'R' {
			return false
		}
		return allDigits(value[1:3]) && isUpperLetter(value[3]) && allDigits(value[4:])
	case ProfileHuawei:
		if len(value) != 16 {
			return false
		}
		return allInCharset(value, hexUpperChars)
	case ProfileXiaomi:
		if len(value) < 12 || len(value) > 16 {
			return false
		}
		return allInCharset(value, alnumChars)
	default:
		if len(value) < 10 || len(value) > 14 {
			return false
		}
		return allInCharset(value, alnumChars)
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isUpperLetter(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func allInCharset(s string, charset string) bool {
	for i := 0; i < len(s); i++ {
		found := false
		for j := 0; j < len(charset); j++ {
			if s[i] == charset[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(s) > 0
}
