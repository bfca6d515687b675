package identity

// Profile 厂商序列号格式模板
// 封闭枚举: 新增厂商必须同时扩展 GenerateSerial 的分支和 TAC 表,
// 任何未收录的厂商名(包括空串)一律落到 ProfileGeneric
type Profile int

const (
	ProfileGeneric Profile = iota // 10-14位大写字母数字
	ProfileSamsung                // 固定字母R + 2位数字 + 1位年份字母 + 8位数字
	ProfileHuawei                 // 16位大写十六进制
	ProfileXiaomi                 // 12-16位大写字母数字
)

func (p Profile) String() string {
	switch p {
	case ProfileSamsung:
		return "samsung"
	case ProfileHuawei:
		return "huawei"
	case ProfileXiaomi:
		return "xiaomi"
	default:
		return "generic"
	}
}

// profileTable 厂商名 → 格式模板
// 匹配大小写敏感, 与 Android Build.MANUFACTURER 的实际取值一致
var profileTable = map[string]Profile{
	"samsung": ProfileSamsung,
	"HUAWEI":  ProfileHuawei,
	"Xiaomi":  ProfileXiaomi,
}

// tacTable 厂商对应的 IMEI TAC 前缀 (8位)
// 通用档没有固定 TAC, 生成时以上报机构码 35 开头随机补齐
var tacTable = map[Profile]string{
	ProfileSamsung: "35693966",
	ProfileHuawei:  "86446502",
	ProfileXiaomi:  "86881202",
}

// plmnTable IMSI 的 MCC+MNC 前缀候选 (与厂商无关, 随机选取)
var plmnTable = []string{
	"310260", // T-Mobile US
	"310410", // AT&T
	"460000", // 中国移动
	"460001", // 中国联通
	"262011", // O2 Germany
	"234150", // Vodafone UK
}

// ProfileFor 按厂商名查找格式模板, 未知厂商返回 ProfileGeneric
func ProfileFor(manufacturer string) Profile {
	if p, ok := profileTable[manufacturer]; ok {
		return p
	}
	return ProfileGeneric
}

// KnownManufacturers 返回已收录的厂商名, 供控制面展示候选列表
func KnownManufacturers() []string {
	return []string{"samsung", "HUAWEI", "Xiaomi"}
}
