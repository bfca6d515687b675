package identity

// LuhnCheckDigit 计算 Luhn 校验位
// 输入为不含校验位的十进制数字串，返回使整串通过校验的末位数字
// 从载荷最右侧开始每隔一位翻倍（校验位占据整串最右侧）
func LuhnCheckDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// ValidateLuhn 重新计算校验位并与末位比较
// 对任意输入都不会失败: 空串、过短或含非数字字符一律返回 false
func ValidateLuhn(number string) bool {
	if len(number) < 2 {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	payload := number[:len(number)-1]
	check := int(number[len(number)-1] - '0')
	return LuhnCheckDigit(payload) == check
}
