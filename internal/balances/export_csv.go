package balances

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const csvBufferSize = 32 * 1024

// WriteTrialBalanceCSV streams a trial balance report as CSV. Amounts are
// written twice: raw minor units for machines, grouped digits for humans.
func WriteTrialBalanceCSV(w io.Writer, report TrialBalance) error {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true

	header := fmt.Sprintf("# trial balance %04d-%02d\r\n", report.FiscalYear, report.FiscalMonth)
	if _, err := buf.WriteString(header); err != nil {
		return err
	}
	if err := writer.Write([]string{"account_code", "account_name", "account_type", "opening", "debits", "credits", "closing", "closing_display"}); err != nil {
		return err
	}
	printer := message.NewPrinter(language.English)
	for _, row := range report.Rows {
		record := []string{
			row.AccountCode,
			row.AccountName,
			row.AccountType,
			strconv.FormatInt(row.OpeningBalance, 10),
			strconv.FormatInt(row.DebitTotal, 10),
			strconv.FormatInt(row.CreditTotal, 10),
			strconv.FormatInt(row.ClosingBalance, 10),
			printer.Sprintf("%d", row.ClosingBalance),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"TOTAL", "", "",
		"", strconv.FormatInt(report.TotalDebits, 10), strconv.FormatInt(report.TotalCredits, 10), "",
		printer.Sprintf("balanced=%t", report.IsBalanced)}); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return buf.Flush()
}
