package identity

import (
	"crypto/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var androidIDPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)
var samsungSerialPattern = regexp.MustCompile(`^R[0-9]{2}[A-Z][0-9]{8}$`)
var huaweiSerialPattern = regexp.MustCompile(`^[0-9A-F]{16}$`)
var alnumPattern = regexp.MustCompile(`^[0-9A-Z]+$`)

// TestGenerateAndroidID 测试 Android ID 格式
func TestGenerateAndroidID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := GenerateAndroidID(rand.Reader)
		require.NoError(t, err)
		assert.Len(t, id, 16)
		assert.Regexp(t, androidIDPattern, id)
	}
}

// TestGenerateAndroidID_Uniqueness 测试统计唯一性: 1000次生成至少990个不同值
func TestGenerateAndroidID_Uniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := GenerateAndroidID(rand.Reader)
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	assert.GreaterOrEqual(t, len(seen), 990, "Generated Android IDs should be effectively unique")
}

// TestGenerateSerial_Samsung 测试三星12位格式: R + 2位数字 + 1位字母 + 8位数字
func TestGenerateSerial_Samsung(t *testing.T) {
	for i := 0; i < 100; i++ {
		serial, err := GenerateSerial("samsung", rand.Reader)
		require.NoError(t, err)
		assert.Len(t, serial, 12)
		assert.Regexp(t, samsungSerialPattern, serial)
		assert.Equal(t, strings.ToUpper(serial), serial, "Samsung serial must be uppercase")
	}
}

// TestGenerateSerial_Huawei 测试华为16位大写十六进制格式
func TestGenerateSerial_Huawei(t *testing.T) {
	for i := 0; i < 100; i++ {
		serial, err := GenerateSerial("HUAWEI", rand.Reader)
		require.NoError(t, err)
		assert.Len(t, serial, 16)
		assert.Regexp(t, huaweiSerialPattern, serial)
	}
}

// TestGenerateSerial_Xiaomi 测试小米12-16位字母数字格式
func TestGenerateSerial_Xiaomi(t *testing.T) {
	for i := 0; i < 100; i++ {
		serial, err := GenerateSerial("Xiaomi", rand.Reader)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(serial), 12)
		assert.LessOrEqual(t, len(serial), 16)
		assert.Regexp(t, alnumPattern, serial)
	}
}

// TestGenerateSerial_UnknownManufacturer 测试未知厂商落到通用模板: 10-14位字母数字
func TestGenerateSerial_UnknownManufacturer(t *testing.T) {
	for _, manufacturer := range []string{"NoSuchVendor", "", "SAMSUNG", "huawei"} {
		for i := 0; i < 50; i++ {
			serial, err := GenerateSerial(manufacturer, rand.Reader)
			require.NoError(t, err, "Unknown manufacturer must not fail")
			assert.GreaterOrEqual(t, len(serial), 10)
			assert.LessOrEqual(t, len(serial), 14)
			assert.Regexp(t, alnumPattern, serial)
		}
	}
}

// TestGenerateSerial_LengthDistribution 通用模板的长度应覆盖整个区间
func TestGenerateSerial_LengthDistribution(t *testing.T) {
	lengths := make(map[int]int)
	for i := 0; i < 500; i++ {
		serial, err := GenerateSerial("unknown", rand.Reader)
		require.NoError(t, err)
		lengths[len(serial)]++
	}
	// 500次生成后 10-14 每个长度都应出现过
	for l := 10; l <= 14; l++ {
		assert.Greater(t, lengths[l], 0, "length %d should appear", l)
	}
}

// TestGenerateIMEI 测试 IMEI: 15位纯数字且通过 Luhn 校验
func TestGenerateIMEI(t *testing.T) {
	manufacturers := []string{"samsung", "HUAWEI", "Xiaomi", "", "unknown"}
	for _, m := range manufacturers {
		for i := 0; i < 100; i++ {
			imei, err := GenerateIMEI(m, rand.Reader)
			require.NoError(t, err)
			assert.Len(t, imei, 15)
			assert.True(t, allDigits(imei), "IMEI must be all digits: %s", imei)
			assert.True(t, ValidateLuhn(imei), "IMEI must pass Luhn validation: %s", imei)
		}
	}
}

// TestGenerateIMEI_TACPrefix 已知厂商的 IMEI 必须携带该厂商的 TAC 前缀
func TestGenerateIMEI_TACPrefix(t *testing.T) {
	tests := []struct {
		manufacturer string
		tac          string
	}{
		{"samsung", "35693966"},
		{"HUAWEI", "86446502"},
		{"Xiaomi", "86881202"},
	}

	for _, tt := range tests {
		imei, err := GenerateIMEI(tt.manufacturer, rand.Reader)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(imei, tt.tac), "IMEI %s should start with TAC %s", imei, tt.tac)
	}
}

// TestGenerateIMSI 测试 IMSI: 15位纯数字, 前缀取自 PLMN 候选表
func TestGenerateIMSI(t *testing.T) {
	for i := 0; i < 100; i++ {
		imsi, err := GenerateIMSI("samsung", rand.Reader)
		require.NoError(t, err)
		assert.Len(t, imsi, 15)
		assert.True(t, allDigits(imsi))

		matched := false
		for _, plmn := range plmnTable {
			if strings.HasPrefix(imsi, plmn) {
				matched = true
				break
			}
		}
		assert.True(t, matched, "IMSI %s should start with a known PLMN", imsi)
	}
}

// TestGenerateAll 测试一次性生成全部类别
func TestGenerateAll(t *testing.T) {
	values, err := GenerateAll("samsung", nil) // nil 随机源应回落到 crypto/rand
	require.NoError(t, err)
	require.Len(t, values, len(AllKinds()))

	for _, kind := range AllKinds() {
		value, ok := values[kind]
		assert.True(t, ok, "kind %s should be generated", kind)
		assert.True(t, Validate(kind, "samsung", value), "value %s should satisfy format of %s", value, kind)
	}
}

// TestGenerate_UnknownKind 未知类别触发防御性错误
func TestGenerate_UnknownKind(t *testing.T) {
	_, err := Generate(Kind("mac_address"), "samsung", rand.Reader)
	assert.Error(t, err)

	var inputErr *GenerationInputError
	assert.ErrorAs(t, err, &inputErr)
}

// TestGenerate_NilRandomSource nil 随机源触发防御性错误
func TestGenerate_NilRandomSource(t *testing.T) {
	for _, kind := range AllKinds() {
		_, err := Generate(kind, "samsung", nil)
		assert.Error(t, err, "kind %s should reject nil random source", kind)
	}
}

// TestProfileFor 测试厂商名匹配: 大小写敏感, 未知落到通用档
func TestProfileFor(t *testing.T) {
	tests := []struct {
		manufacturer string
		want         Profile
	}{
		{"samsung", ProfileSamsung},
		{"HUAWEI", ProfileHuawei},
		{"Xiaomi", ProfileXiaomi},
		{"Samsung", ProfileGeneric}, // 大小写不匹配
		{"xiaomi", ProfileGeneric},
		{"", ProfileGeneric}, // 空串等同于未知厂商
		{"OnePlus", ProfileGeneric},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ProfileFor(tt.manufacturer), "manufacturer %q", tt.manufacturer)
	}
}

// TestValidate 校验函数对各类别生成值的自洽性
func TestValidate(t *testing.T) {
	for _, m := range []string{"samsung", "HUAWEI", "Xiaomi", "unknown"} {
		values, err := GenerateAll(m, rand.Reader)
		require.NoError(t, err)
		for kind, value := range values {
			assert.True(t, Validate(kind, m, value), "manufacturer %s kind %s value %s", m, kind, value)
		}
	}

	// 反例
	assert.False(t, Validate(KindAndroidID, "", "ABCDEF0123456789")) // 大写十六进制不合法
	assert.False(t, Validate(KindIMEI, "", "490154203237519"))      // 校验位错误
	assert.False(t, Validate(KindSerial, "samsung", "X12A34567890")) // 首字母错误
	assert.False(t, Validate(KindIMSI, "", "12345"))
}

// BenchmarkGenerateIMEI 基准测试: IMEI 生成
func BenchmarkGenerateIMEI(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := GenerateIMEI("samsung", rand.Reader); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkGenerateAll 基准测试: 全量生成(分组创建路径)
func BenchmarkGenerateAll(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := GenerateAll("samsung", rand.Reader); err != nil {
			b.Fatal(err)
		}
	}
}
